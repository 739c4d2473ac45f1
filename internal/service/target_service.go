package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/salesboard/backend-go/internal/cache"
	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/kpi"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository"
)

// ErrInvalidTarget wraps validation failures of a submitted target config.
var ErrInvalidTarget = errors.New("invalid target config")

type TargetService struct {
	repo     repository.TargetRepository
	cache    cache.TargetCache
	defaults config.TargetConfig
}

func NewTargetService(repo repository.TargetRepository, cacheImpl cache.TargetCache, defaults config.TargetConfig) *TargetService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopTargetCache()
	}
	return &TargetService{repo: repo, cache: cacheImpl, defaults: defaults}
}

// Get returns the configuration of month, falling back to the configured
// defaults when none was saved.
func (s *TargetService) Get(ctx context.Context, month string) (*domain.TargetConfig, error) {
	if _, err := domain.ParseMonth(month); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	if cfg, ok, err := s.cache.Get(ctx, month); err == nil && ok {
		return cfg, nil
	} else if err != nil {
		log.Warn().Err(err).Str("month", month).Msg("targets: cache get failed")
	}

	cfg, err := s.repo.GetTarget(ctx, month)
	if errors.Is(err, repository.ErrTargetNotFound) {
		return s.defaultFor(month), nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cfg); err != nil {
		log.Warn().Err(err).Str("month", month).Msg("targets: cache set failed")
	}
	return cfg, nil
}

// Save validates cfg, derives the implied weekday target and stores it.
func (s *TargetService) Save(ctx context.Context, cfg *domain.TargetConfig) error {
	cfg.NormalizeHolidays()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	withImplied(cfg)

	if err := s.repo.SaveTarget(ctx, cfg); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cfg.Month); err != nil {
		log.Warn().Err(err).Str("month", cfg.Month).Msg("targets: cache delete failed")
	}

	log.Info().
		Str("month", cfg.Month).
		Float64("monthly_target", cfg.MonthlyTarget).
		Ints("special_holidays", cfg.SpecialHolidays).
		Msg("Target config saved")
	return nil
}

func (s *TargetService) List(ctx context.Context, limit int) ([]domain.TargetConfig, error) {
	return s.repo.ListTargets(ctx, limit)
}

func (s *TargetService) defaultFor(month string) *domain.TargetConfig {
	cfg := &domain.TargetConfig{
		Month:               month,
		MonthlyTarget:       s.defaults.DefaultMonthly,
		WeekendTargetPerDay: s.defaults.DefaultWeekendPerDay,
		HolidayTargetPerDay: s.defaults.DefaultHolidayPerDay,
		SpecialHolidays:     []int{},
	}
	withImplied(cfg)
	return cfg
}

func withImplied(cfg *domain.TargetConfig) {
	month, err := domain.ParseMonth(cfg.Month)
	if err != nil {
		return
	}
	cal := kpi.NewCalendar(month, cfg.SpecialHolidays, cfg.MonthlyTarget, cfg.WeekendTargetPerDay, cfg.HolidayTargetPerDay)
	cfg.WeekdayImplied = cal.WeekdayTarget()
}
