package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository"
)

type targetRepository struct {
	db *DB
}

func NewTargetRepository(db *DB) repository.TargetRepository {
	return &targetRepository{db: db}
}

func (r *targetRepository) GetTarget(ctx context.Context, month string) (*domain.TargetConfig, error) {
	query := `
		SELECT month, monthly_target, weekday_implied, weekend_target_per_day,
		       holiday_target_per_day, updated_at
		FROM month_targets
		WHERE month = $1
	`

	var cfg domain.TargetConfig
	if err := r.db.GetContext(ctx, &cfg, query, month); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTargetNotFound
		}
		return nil, fmt.Errorf("error getting target for %s: %w", month, err)
	}

	days, err := r.holidays(ctx, r.db.DB, []string{month})
	if err != nil {
		return nil, err
	}
	cfg.SpecialHolidays = holidaysOf(days, month)
	return &cfg, nil
}

func (r *targetRepository) SaveTarget(ctx context.Context, cfg *domain.TargetConfig) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		upsert := `
			INSERT INTO month_targets (
				month, monthly_target, weekday_implied, weekend_target_per_day,
				holiday_target_per_day, updated_at
			) VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (month)
			DO UPDATE SET
				monthly_target = EXCLUDED.monthly_target,
				weekday_implied = EXCLUDED.weekday_implied,
				weekend_target_per_day = EXCLUDED.weekend_target_per_day,
				holiday_target_per_day = EXCLUDED.holiday_target_per_day,
				updated_at = NOW()
			RETURNING updated_at
		`
		if err := tx.QueryRowxContext(ctx, upsert,
			cfg.Month,
			cfg.MonthlyTarget,
			cfg.WeekdayImplied,
			cfg.WeekendTargetPerDay,
			cfg.HolidayTargetPerDay,
		).Scan(&cfg.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert target: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM month_target_holidays WHERE month = $1`, cfg.Month); err != nil {
			return fmt.Errorf("failed to clear holidays: %w", err)
		}
		if len(cfg.SpecialHolidays) == 0 {
			return nil
		}

		insert := `
			INSERT INTO month_target_holidays (month, day)
			SELECT $1, unnest($2::smallint[])
		`
		if _, err := tx.ExecContext(ctx, insert, cfg.Month, pq.Array(cfg.SpecialHolidays)); err != nil {
			return fmt.Errorf("failed to insert holidays: %w", err)
		}
		return nil
	})
}

func (r *targetRepository) ListTargets(ctx context.Context, limit int) ([]domain.TargetConfig, error) {
	if limit <= 0 {
		limit = 24
	}

	query := `
		SELECT month, monthly_target, weekday_implied, weekend_target_per_day,
		       holiday_target_per_day, updated_at
		FROM month_targets
		ORDER BY month DESC
		LIMIT $1
	`

	var targets []domain.TargetConfig
	if err := r.db.SelectContext(ctx, &targets, query, limit); err != nil {
		return nil, fmt.Errorf("error listing targets: %w", err)
	}
	if len(targets) == 0 {
		return targets, nil
	}

	months := make([]string, len(targets))
	for i, t := range targets {
		months[i] = t.Month
	}
	days, err := r.holidays(ctx, r.db.DB, months)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		targets[i].SpecialHolidays = holidaysOf(days, targets[i].Month)
	}
	return targets, nil
}

func (r *targetRepository) holidays(ctx context.Context, q sqlx.QueryerContext, months []string) (map[string][]int, error) {
	query := `
		SELECT month, day
		FROM month_target_holidays
		WHERE month = ANY($1::text[])
		ORDER BY month, day
	`

	rows, err := q.QueryxContext(ctx, query, pq.Array(months))
	if err != nil {
		return nil, fmt.Errorf("error getting holidays: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int, len(months))
	for rows.Next() {
		var month string
		var day int
		if err := rows.Scan(&month, &day); err != nil {
			return nil, fmt.Errorf("error scanning holiday: %w", err)
		}
		out[month] = append(out[month], day)
	}
	return out, rows.Err()
}

// holidaysOf never returns nil so months without holidays encode as [].
func holidaysOf(days map[string][]int, month string) []int {
	if d := days[month]; d != nil {
		return d
	}
	return []int{}
}
