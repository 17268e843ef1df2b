package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

// Tier is one band of the commission schedule. Max is exclusive; a nil Max
// makes the tier unbounded and only the last tier may be unbounded.
type Tier struct {
	Min  decimal.Decimal  `json:"min"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// Schedule is one decoded commission config version.
type Schedule struct {
	Version     int             `json:"version"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	Tiers       []Tier          `json:"tiers"`
}

// Quote is the commission math for one gross amount.
type Quote struct {
	Gross         decimal.Decimal `json:"gross"`
	Rate          decimal.Decimal `json:"rate"`
	Commission    decimal.Decimal `json:"commission"`
	Net           decimal.Decimal `json:"net"`
	ConfigVersion int             `json:"config_version"`
}

// UpdateParams describes a new schedule version submitted by an admin.
type UpdateParams struct {
	DefaultRate decimal.Decimal
	Tiers       []Tier
	CreatedBy   uuid.UUID
}

// Service owns the versioned commission schedule and the tier math.
type Service interface {
	Current(ctx context.Context) (*Schedule, error)
	History(ctx context.Context, limit int) ([]Schedule, error)
	Update(ctx context.Context, params UpdateParams) (*Schedule, error)
	Calculate(ctx context.Context, gross decimal.Decimal) (*Quote, error)
}

// ServiceParams wires the commission service dependencies.
type ServiceParams struct {
	Repo   Repository
	Tx     db.TxRunner
	Logger *logger.Logger
}

type service struct {
	repo Repository
	tx   db.TxRunner
	logg *logger.Logger
}

// NewService wires a commission service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: params.Repo, tx: params.Tx, logg: params.Logger}, nil
}

func (s *service) Current(ctx context.Context) (*Schedule, error) {
	cfg, err := s.repo.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no commission configuration")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch commission config")
	}
	return decodeSchedule(cfg)
}

func (s *service) History(ctx context.Context, limit int) ([]Schedule, error) {
	cfgs, err := s.repo.ListVersions(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission configs")
	}
	schedules := make([]Schedule, 0, len(cfgs))
	for i := range cfgs {
		schedule, err := decodeSchedule(&cfgs[i])
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, nil
}

// Update validates the submitted schedule and inserts it as the next version.
// Old versions are never modified; transactions keep the version they were
// priced with in their metadata.
func (s *service) Update(ctx context.Context, params UpdateParams) (*Schedule, error) {
	if err := validateSchedule(params.DefaultRate, params.Tiers); err != nil {
		return nil, err
	}

	tiers := params.Tiers
	if tiers == nil {
		tiers = []Tier{}
	}
	raw, err := json.Marshal(tiers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode commission tiers")
	}

	var created *models.CommissionConfig
	txErr := s.tx.WithTx(ctx, func(gtx *gorm.DB) error {
		repo := s.repo.WithTx(gtx)

		version := 1
		latest, err := repo.GetLatest(ctx)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch commission config")
		}
		if latest != nil {
			version = latest.Version + 1
		}

		cfg := &models.CommissionConfig{
			ID:          uuid.New(),
			Version:     version,
			DefaultRate: params.DefaultRate,
			Tiers:       raw,
		}
		if params.CreatedBy != uuid.Nil {
			createdBy := params.CreatedBy
			cfg.CreatedBy = &createdBy
		}
		if err := repo.Create(ctx, cfg); err != nil {
			// A concurrent update claimed this version number first.
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "commission config updated concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert commission config")
		}
		created = cfg
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"version":      created.Version,
		"default_rate": params.DefaultRate.String(),
		"tiers":        len(params.Tiers),
	})
	s.logg.Info(logCtx, "commission.config_updated")
	return decodeSchedule(created)
}

func (s *service) Calculate(ctx context.Context, gross decimal.Decimal) (*Quote, error) {
	if !gross.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "gross amount must be greater than zero")
	}
	schedule, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.Quote(gross), nil
}

// Quote applies the schedule to one gross amount. Commission rounds half-up
// to 2 decimal places; net absorbs the rounding remainder so gross is always
// commission + net exactly.
func (s *Schedule) Quote(gross decimal.Decimal) *Quote {
	rate := s.rateFor(gross)
	commission := gross.Mul(rate).Round(2)
	return &Quote{
		Gross:         gross,
		Rate:          rate,
		Commission:    commission,
		Net:           gross.Sub(commission),
		ConfigVersion: s.Version,
	}
}

func (s *Schedule) rateFor(gross decimal.Decimal) decimal.Decimal {
	for _, tier := range s.Tiers {
		if gross.LessThan(tier.Min) {
			continue
		}
		if tier.Max == nil || gross.LessThan(*tier.Max) {
			return tier.Rate
		}
	}
	return s.DefaultRate
}

var one = decimal.NewFromInt(1)

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(one)
}

// validateSchedule rejects configurations before they can misprice a single
// booking: rates outside [0,1], unordered tiers, gaps, overlaps, or an
// unbounded tier anywhere but last.
func validateSchedule(defaultRate decimal.Decimal, tiers []Tier) error {
	if !validRate(defaultRate) {
		return pkgerrors.New(pkgerrors.CodeInvalidCommission, "default rate must be within [0, 1]").
			WithDetails(map[string]any{"default_rate": defaultRate.String()})
	}

	for i, tier := range tiers {
		detail := map[string]any{"tier": i}
		if !validRate(tier.Rate) {
			return pkgerrors.New(pkgerrors.CodeInvalidCommission, "tier rate must be within [0, 1]").
				WithDetails(detail)
		}
		if tier.Min.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeInvalidCommission, "tier minimum must not be negative").
				WithDetails(detail)
		}
		if tier.Max != nil {
			if !tier.Max.GreaterThan(tier.Min) {
				return pkgerrors.New(pkgerrors.CodeInvalidCommission, "tier maximum must exceed its minimum").
					WithDetails(detail)
			}
		} else if i != len(tiers)-1 {
			return pkgerrors.New(pkgerrors.CodeInvalidCommission, "only the last tier may be unbounded").
				WithDetails(detail)
		}
		if i > 0 {
			prev := tiers[i-1]
			if prev.Max == nil || !prev.Max.Equal(tier.Min) {
				return pkgerrors.New(pkgerrors.CodeInvalidCommission, "tiers must be contiguous and ascending").
					WithDetails(detail)
			}
		}
	}
	return nil
}

func decodeSchedule(cfg *models.CommissionConfig) (*Schedule, error) {
	var tiers []Tier
	if len(cfg.Tiers) > 0 {
		if err := json.Unmarshal(cfg.Tiers, &tiers); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode commission tiers")
		}
	}
	return &Schedule{
		Version:     cfg.Version,
		DefaultRate: cfg.DefaultRate,
		Tiers:       tiers,
	}, nil
}
