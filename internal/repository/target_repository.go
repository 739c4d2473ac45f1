package repository

import (
	"context"
	"errors"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

// ErrTargetNotFound is returned when no configuration exists for a month.
var ErrTargetNotFound = errors.New("target config not found")

// TargetRepository persists month target configurations.
type TargetRepository interface {
	GetTarget(ctx context.Context, month string) (*domain.TargetConfig, error)
	SaveTarget(ctx context.Context, cfg *domain.TargetConfig) error
	ListTargets(ctx context.Context, limit int) ([]domain.TargetConfig, error)
}
