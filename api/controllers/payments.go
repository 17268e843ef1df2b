package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/api/responses"
	"github.com/davidkaranja/fundilink-backend/api/validators"
	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/pagination"
)

type bookingPaymentRequest struct {
	BookingID      string          `json:"booking_id" validate:"required"`
	ProviderUserID string          `json:"provider_user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Method         string          `json:"method" validate:"required"`
	Description    string          `json:"description"`
	SourceToken    string          `json:"source_token"`
	PhoneNumber    string          `json:"phone_number"`
}

func (p *bookingPaymentRequest) toParams(payerID uuid.UUID) (escrow.ProcessPaymentParams, error) {
	bookingID, err := uuid.Parse(p.BookingID)
	if err != nil {
		return escrow.ProcessPaymentParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	providerID, err := uuid.Parse(p.ProviderUserID)
	if err != nil {
		return escrow.ProcessPaymentParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider user id")
	}
	method, err := enums.ParsePaymentMethod(p.Method)
	if err != nil {
		return escrow.ProcessPaymentParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	return escrow.ProcessPaymentParams{
		BookingID:      bookingID,
		PayerUserID:    payerID,
		ProviderUserID: providerID,
		Amount:         p.Amount,
		Method:         method,
		Description:    validators.SanitizeString(p.Description, 255),
		SourceToken:    p.SourceToken,
		PhoneNumber:    p.PhoneNumber,
	}, nil
}

// PayBooking takes a booking payment into escrow.
func PayBooking(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		payerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bookingPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams(payerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessBookingPayment(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Pending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// ConfirmBookingPayment re-verifies a pending external charge with the
// gateway and settles it into a hold when the rail has confirmed.
func ConfirmBookingPayment(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		payerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "bookingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bookingPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams(payerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.BookingID != bookingID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "booking id mismatch"))
			return
		}

		result, err := svc.ConfirmExternalPayment(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Pending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// GetBookingPayment returns the hold for a booking the caller is a party to.
func GetBookingPayment(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "bookingID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hold, err := svc.GetHold(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if hold.PayerUserID != userID && hold.ProviderUserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not involve caller"))
			return
		}

		responses.WriteSuccess(w, hold)
	}
}

// ListPaymentHolds returns the caller's holds on either side of a booking.
func ListPaymentHolds(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		holds, err := svc.ListHoldsByUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, holds)
	}
}
