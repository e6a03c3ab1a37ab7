// Package policy decides which ticket status changes deserve a notification.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// availableMarkers is the page's own vocabulary for tickets that can be bought.
var availableMarkers = []string{"受付中", "販売中", "残りわずか", "空席あり"}

// IsAvailable reports whether status contains one of the positive markers.
func IsAvailable(status string) bool {
	for _, m := range availableMarkers {
		if strings.Contains(status, m) {
			return true
		}
	}
	return false
}

// State is the watermark of the last communicated status per ticket key.
// It lives for the whole process; a restart re-arms every notification.
type State struct {
	mu       sync.RWMutex
	statuses map[string]string
}

func NewState() *State {
	return &State{statuses: make(map[string]string)}
}

// Observe records status for key and reports whether a notification is due.
//
// An available status notifies when it differs from the stored one, which
// also covers keys never seen before. An unavailable status never notifies
// but always overwrites the stored value, so a later return to a previously
// notified string counts as new.
func (s *State) Observe(key, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !IsAvailable(status) {
		s.statuses[key] = status
		return false
	}

	prev, seen := s.statuses[key]
	if seen && prev == status {
		return false
	}
	s.statuses[key] = status
	return true
}

// Get returns the stored status for key.
func (s *State) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.statuses[key]
	return v, ok
}

// Entry is a read-only view of one watermark.
type Entry struct {
	TicketKey string `json:"ticket_key"`
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

// Entries returns the watermarks sorted by key.
func (s *State) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.statuses))
	for k, v := range s.statuses {
		entries = append(entries, Entry{TicketKey: k, Status: v, Available: IsAvailable(v)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TicketKey < entries[j].TicketKey })
	return entries
}

// Decision is the policy outcome for one ticket in one cycle.
type Decision struct {
	TicketKey string
	Status    string
	Available bool
	Notify    bool
}

// Evaluate applies Observe to every entry of a cycle's statuses in key order,
// so the resulting messages come out in a stable order.
func Evaluate(state *State, statuses map[string]string) []Decision {
	keys := make([]string, 0, len(statuses))
	for k := range statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	decisions := make([]Decision, 0, len(keys))
	for _, k := range keys {
		status := statuses[k]
		decisions = append(decisions, Decision{
			TicketKey: k,
			Status:    status,
			Available: IsAvailable(status),
			Notify:    state.Observe(k, status),
		})
	}
	return decisions
}

// FormatMessage renders the notification text for one ticket.
func FormatMessage(key, status, url string) string {
	return fmt.Sprintf("【AVAILABLE】\n%s\nStatus: %s\nLink: %s", key, status, url)
}
