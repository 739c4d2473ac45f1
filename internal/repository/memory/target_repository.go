// Package memory keeps target configurations in process memory. It backs
// TARGET_STORE=memory and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository"
)

type targetRepository struct {
	mu      sync.RWMutex
	targets map[string]domain.TargetConfig
	now     func() time.Time
}

func NewTargetRepository() repository.TargetRepository {
	return &targetRepository{
		targets: make(map[string]domain.TargetConfig),
		now:     time.Now,
	}
}

func (r *targetRepository) GetTarget(ctx context.Context, month string) (*domain.TargetConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.targets[month]
	if !ok {
		return nil, repository.ErrTargetNotFound
	}
	cfg.SpecialHolidays = append([]int(nil), cfg.SpecialHolidays...)
	return &cfg, nil
}

func (r *targetRepository) SaveTarget(ctx context.Context, cfg *domain.TargetConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *cfg
	stored.SpecialHolidays = append([]int(nil), cfg.SpecialHolidays...)
	stored.UpdatedAt = r.now().UTC()
	r.targets[cfg.Month] = stored
	cfg.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *targetRepository) ListTargets(ctx context.Context, limit int) ([]domain.TargetConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TargetConfig, 0, len(r.targets))
	for _, cfg := range r.targets {
		cfg.SpecialHolidays = append([]int(nil), cfg.SpecialHolidays...)
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
