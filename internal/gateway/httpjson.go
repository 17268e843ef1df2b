package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

// restClient is the shared JSON-over-HTTP plumbing for the mobile money and
// bank transfer rails.
type restClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	logg    *logger.Logger
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"gateway": c.name, "path": path})
		c.logg.Error(logCtx, "gateway.transport_error", err)
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, fmt.Sprintf("%s gateway unreachable", c.name))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, fmt.Sprintf("%s gateway response unreadable", c.name))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapStatus(ctx, resp.StatusCode, raw, path)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"gateway": c.name, "path": path})
			c.logg.Error(logCtx, "gateway.malformed_response", err)
			return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, fmt.Sprintf("%s gateway returned malformed response", c.name))
		}
	}
	return nil
}

func (c *restClient) mapStatus(ctx context.Context, status int, raw []byte, path string) error {
	message := gatewayMessage(raw)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"gateway": c.name,
		"path":    path,
		"status":  status,
		"message": message,
	})
	c.logg.Warn(logCtx, "gateway.rejected")

	switch status {
	case http.StatusPaymentRequired:
		return pkgerrors.New(pkgerrors.CodeGatewayDeclined, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.New(pkgerrors.CodeValidation, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeGatewayError, fmt.Sprintf("%s gateway rejected credentials", c.name))
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	case http.StatusConflict:
		return pkgerrors.New(pkgerrors.CodeConflict, message)
	default:
		return pkgerrors.New(pkgerrors.CodeGatewayError, fmt.Sprintf("%s gateway error (%d)", c.name, status))
	}
}

// gatewayMessage digs the human message out of an error body, tolerating the
// common {"message": ...} and {"error": {"message": ...}} shapes.
func gatewayMessage(raw []byte) string {
	var direct struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct.Message != "" {
			return direct.Message
		}
		if direct.Error.Message != "" {
			return direct.Error.Message
		}
	}
	return "gateway request rejected"
}

func parseGatewayStatus(name, value string) (enums.GatewayStatus, error) {
	status := enums.GatewayStatus(value)
	if !status.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeGatewayError,
			fmt.Sprintf("%s gateway returned unknown status %q", name, value))
	}
	return status, nil
}
