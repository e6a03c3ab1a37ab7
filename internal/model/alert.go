package model

import "time"

type Alert struct {
	ID        int64     `json:"id"`
	TicketKey string    `json:"ticket_key"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Delivered bool      `json:"delivered"`
	SentAt    time.Time `json:"sent_at"`
}
