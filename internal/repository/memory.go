package repository

import (
	"context"
	"sync"
	"time"

	"github.com/andres10976/ticketwatch/internal/model"
)

// MemoryMonitorRepository keeps the monitor state in process memory when no
// database is configured.
type MemoryMonitorRepository struct {
	mu    sync.Mutex
	state model.MonitorState
}

func NewMemoryMonitorRepository() *MemoryMonitorRepository {
	return &MemoryMonitorRepository{state: model.MonitorState{UpdatedAt: time.Now()}}
}

func (r *MemoryMonitorRepository) Get(_ context.Context) (*model.MonitorState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	return &s, nil
}

func (r *MemoryMonitorRepository) Update(_ context.Context, state *model.MonitorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = *state
	r.state.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryMonitorRepository) SetRunning(_ context.Context, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsRunning = running
	r.state.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryMonitorRepository) SetError(_ context.Context, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.LastError = errMsg
	r.state.UpdatedAt = time.Now()
	return nil
}
