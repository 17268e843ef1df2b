package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeInvalidAmount, http.StatusBadRequest, false},
		{CodeInsufficientFunds, http.StatusUnprocessableEntity, false},
		{CodeDuplicateReference, http.StatusConflict, false},
		{CodeGatewayError, http.StatusServiceUnavailable, true},
		{CodeGatewayDeclined, http.StatusPaymentRequired, false},
		{CodeHoldResolved, http.StatusConflict, false},
		{CodeRefundMismatch, http.StatusBadRequest, false},
	}

	for _, tc := range cases {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, meta.HTTPStatus)
		}
		if meta.Retryable != tc.retryable {
			t.Fatalf("%s: expected retryable=%v", tc.code, tc.retryable)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOT_A_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("row locked")
	err := Wrap(CodeDependency, cause, "acquire wallet lock")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := New(CodeInsufficientFunds, "debit exceeds balance")
	wrapped := fmt.Errorf("processing withdrawal: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeInsufficientFunds {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeRefundMismatch, "split 600+300 != 1000")
	if !IsCode(err, CodeRefundMismatch) {
		t.Fatal("expected IsCode match")
	}
	if IsCode(err, CodeGatewayError) {
		t.Fatal("unexpected IsCode match")
	}
	if IsCode(nil, CodeGatewayError) {
		t.Fatal("nil error should never match")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeGatewayError, "timeout")) {
		t.Fatal("gateway errors should be retryable")
	}
	if Retryable(New(CodeGatewayDeclined, "card declined")) {
		t.Fatal("declines should not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Fatal("untyped errors should not be retryable")
	}
}
