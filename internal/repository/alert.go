package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andres10976/ticketwatch/internal/model"
)

type AlertRepository struct {
	pool *pgxpool.Pool
}

func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

func (r *AlertRepository) Create(ctx context.Context, alert *model.Alert) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO ticket_alerts (ticket_key, status, message, delivered, sent_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		alert.TicketKey, alert.Status, alert.Message, alert.Delivered, alert.SentAt,
	).Scan(&alert.ID)
}

func (r *AlertRepository) ListPaginated(ctx context.Context, page, perPage int) ([]model.Alert, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ticket_alerts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_key, status, message, delivered, sent_at
		FROM ticket_alerts
		ORDER BY sent_at DESC
		LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.TicketKey, &a.Status, &a.Message, &a.Delivered, &a.SentAt); err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}
