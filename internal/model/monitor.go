package model

import "time"

type MonitorState struct {
	LastRunAt                *time.Time `json:"last_run_at"`
	TotalCycles              int64      `json:"total_cycles"`
	TicketsInLastCycle       int        `json:"tickets_in_last_cycle"`
	AvailableInLastCycle     int        `json:"available_in_last_cycle"`
	NotificationsInLastCycle int        `json:"notifications_in_last_cycle"`
	SkippedInLastCycle       int        `json:"skipped_in_last_cycle"`
	LastError                string     `json:"last_error,omitempty"`
	IsRunning                bool       `json:"is_running"`
	UpdatedAt                time.Time  `json:"updated_at"`
}
