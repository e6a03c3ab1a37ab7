package model

import "time"

// Observation is one ticket status seen during one cycle.
type Observation struct {
	ID         int64     `json:"id"`
	TicketKey  string    `json:"ticket_key"`
	Status     string    `json:"status"`
	Available  bool      `json:"available"`
	ObservedAt time.Time `json:"observed_at"`
}
