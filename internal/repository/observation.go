package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres10976/ticketwatch/internal/model"
)

type ObservationRepository struct {
	pool *pgxpool.Pool
}

func NewObservationRepository(pool *pgxpool.Pool) *ObservationRepository {
	return &ObservationRepository{pool: pool}
}

// CreateBatch stores every observation of one cycle in a single round trip.
func (r *ObservationRepository) CreateBatch(ctx context.Context, obs []model.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(
			`INSERT INTO ticket_observations (ticket_key, status, available, observed_at)
			 VALUES ($1, $2, $3, $4)`,
			o.TicketKey, o.Status, o.Available, o.ObservedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range obs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert observation %q: %w", obs[i].TicketKey, err)
		}
	}
	return nil
}

// Latest returns the most recent observation of every ticket key.
func (r *ObservationRepository) Latest(ctx context.Context) ([]model.Observation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (ticket_key) id, ticket_key, status, available, observed_at
		FROM ticket_observations
		ORDER BY ticket_key, observed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ListByKey returns the newest observations of one ticket key.
func (r *ObservationRepository) ListByKey(ctx context.Context, key string, limit int) ([]model.Observation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_key, status, available, observed_at
		FROM ticket_observations
		WHERE ticket_key = $1
		ORDER BY observed_at DESC
		LIMIT $2`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows pgx.Rows) ([]model.Observation, error) {
	var obs []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.ID, &o.TicketKey, &o.Status, &o.Available, &o.ObservedAt); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}
