package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres10976/ticketwatch/internal/model"
)

type MonitorRepository struct {
	pool *pgxpool.Pool
}

func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

func (r *MonitorRepository) Get(ctx context.Context) (*model.MonitorState, error) {
	var s model.MonitorState
	err := r.pool.QueryRow(ctx,
		`SELECT last_run_at, total_cycles, tickets_in_last_cycle,
			available_in_last_cycle, notifications_in_last_cycle,
			skipped_in_last_cycle, last_error, is_running, updated_at
		FROM monitor_state WHERE id = 1`,
	).Scan(
		&s.LastRunAt, &s.TotalCycles, &s.TicketsInLastCycle,
		&s.AvailableInLastCycle, &s.NotificationsInLastCycle,
		&s.SkippedInLastCycle, &s.LastError, &s.IsRunning, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MonitorRepository) Update(ctx context.Context, state *model.MonitorState) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE monitor_state SET
			last_run_at = $1,
			total_cycles = $2,
			tickets_in_last_cycle = $3,
			available_in_last_cycle = $4,
			notifications_in_last_cycle = $5,
			skipped_in_last_cycle = $6,
			last_error = $7,
			is_running = $8,
			updated_at = $9
		WHERE id = 1`,
		state.LastRunAt, state.TotalCycles, state.TicketsInLastCycle,
		state.AvailableInLastCycle, state.NotificationsInLastCycle,
		state.SkippedInLastCycle, state.LastError, state.IsRunning, now,
	)
	return err
}

func (r *MonitorRepository) SetRunning(ctx context.Context, running bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE monitor_state SET is_running = $1, updated_at = $2 WHERE id = 1`,
		running, time.Now(),
	)
	return err
}

func (r *MonitorRepository) SetError(ctx context.Context, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE monitor_state SET last_error = $1, updated_at = $2 WHERE id = 1`,
		errMsg, time.Now(),
	)
	return err
}
