package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/api/responses"
	"github.com/davidkaranja/fundilink-backend/api/validators"
	"github.com/davidkaranja/fundilink-backend/internal/commission"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

type commissionTierPayload struct {
	Min  decimal.Decimal  `json:"min"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

type commissionUpdateRequest struct {
	DefaultRate decimal.Decimal         `json:"default_rate" validate:"required"`
	Tiers       []commissionTierPayload `json:"tiers"`
}

// GetCommissionSchedule returns the active schedule version.
func GetCommissionSchedule(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		schedule, err := svc.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, schedule)
	}
}

// CommissionHistory returns prior schedule versions, newest first.
func CommissionHistory(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, history)
	}
}

// UpdateCommissionSchedule inserts a new schedule version.
func UpdateCommissionSchedule(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}

		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload commissionUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tiers := make([]commission.Tier, 0, len(payload.Tiers))
		for _, tier := range payload.Tiers {
			tiers = append(tiers, commission.Tier{Min: tier.Min, Max: tier.Max, Rate: tier.Rate})
		}

		schedule, err := svc.Update(r.Context(), commission.UpdateParams{
			DefaultRate: payload.DefaultRate,
			Tiers:       tiers,
			CreatedBy:   adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, schedule)
	}
}
