package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/andres10976/ticketwatch/internal/config"
	"github.com/andres10976/ticketwatch/internal/model"
	"github.com/andres10976/ticketwatch/internal/service/extractor"
	"github.com/andres10976/ticketwatch/internal/service/policy"
)

// DefaultErrorBackoff is the pause after a failed cycle.
const DefaultErrorBackoff = 60 * time.Second

// PageSession is one acquired browser, scoped to a single cycle.
type PageSession interface {
	Render(ctx context.Context, url string) (*goquery.Document, error)
	Close() error
}

// SessionOpener acquires a PageSession.
type SessionOpener func(ctx context.Context) (PageSession, error)

// TargetLoader returns the current target file. It must not fail; problems
// are reported as an empty file.
type TargetLoader func() config.TargetFile

type broadcaster interface {
	Enabled() bool
	Broadcast(ctx context.Context, messages []string) error
}

type logAppender interface {
	Append(now time.Time, statuses map[string]string) error
}

type observationRecorder interface {
	CreateBatch(ctx context.Context, obs []model.Observation) error
}

type alertCreator interface {
	Create(ctx context.Context, alert *model.Alert) error
}

type stateStore interface {
	Update(ctx context.Context, state *model.MonitorState) error
	SetRunning(ctx context.Context, running bool) error
}

// Options holds the optional collaborators of a Monitor.
type Options struct {
	ErrorBackoff time.Duration

	// Observations and Alerts are nil when no history database is configured.
	Observations observationRecorder
	Alerts       alertCreator

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Targets       int
	Sections      int
	Tickets       int
	Available     int
	Notifications int
	Skipped       int
}

type Monitor struct {
	url         string
	open        SessionOpener
	loadTargets TargetLoader
	notify      broadcaster
	dailyLog    logAppender
	state       stateStore

	observations observationRecorder
	alerts       alertCreator

	backoff time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	watermark *policy.State

	mu     sync.Mutex
	cycles int64
}

func New(
	url string,
	open SessionOpener,
	loadTargets TargetLoader,
	notify broadcaster,
	dailyLog logAppender,
	st stateStore,
	opts Options,
) *Monitor {
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Monitor{
		url:          url,
		open:         open,
		loadTargets:  loadTargets,
		notify:       notify,
		dailyLog:     dailyLog,
		state:        st,
		observations: opts.Observations,
		alerts:       opts.Alerts,
		backoff:      opts.ErrorBackoff,
		now:          opts.Now,
		sleep:        opts.Sleep,
		watermark:    policy.NewState(),
	}
}

// Watermarks returns the last communicated status of every ticket key.
func (m *Monitor) Watermarks() []policy.Entry {
	return m.watermark.Entries()
}

// Run executes one cycle immediately, then keeps sleeping and cycling until
// ctx is canceled. A failed cycle is logged and followed by the error
// backoff instead of the configured interval. Run never returns an error for
// a failed cycle.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor started", "url", m.url)
	if err := m.state.SetRunning(ctx, true); err != nil {
		slog.Warn("failed to mark monitor running", "error", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.state.SetRunning(cleanupCtx, false); err != nil {
			slog.Warn("failed to mark monitor stopped", "error", err)
		}
	}()

	delay := m.runOnce(ctx)
	for {
		if err := m.sleep(ctx, delay); err != nil {
			slog.Info("monitor stopping", "reason", err)
			return nil
		}
		delay = m.runOnce(ctx)
	}
}

// runOnce runs a cycle and returns how long to wait before the next one.
func (m *Monitor) runOnce(ctx context.Context) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("monitor cycle panicked", "error", r, "stack", string(debug.Stack()))
			m.recordState(ctx, CycleReport{}, fmt.Errorf("panic: %v", r))
			next = m.backoff
		}
	}()

	report, err := m.RunCycle(ctx)
	m.recordState(ctx, report, err)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("monitor cycle failed, backing off", "error", err, "backoff", m.backoff)
		}
		return m.backoff
	}

	interval := m.loadTargets().Interval()
	slog.Info("cycle complete",
		"tickets", report.Tickets,
		"available", report.Available,
		"notifications", report.Notifications,
		"next_check", interval,
	)
	return interval
}

// RunCycle performs one poll: load targets, render the page, extract
// statuses, notify on availability changes and append the daily log.
// Only failures to obtain the page are returned; notification, log and
// history failures are logged and do not stop the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	targets := m.loadTargets().TargetTickets
	report.Targets = len(targets)
	if len(targets) == 0 {
		slog.Info("No target tickets configured.")
		return report, nil
	}

	session, err := m.open(ctx)
	if err != nil {
		return report, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close browser session", "error", err)
		}
	}()

	slog.Info("checking ticket page", "url", m.url, "targets", len(targets))
	doc, err := session.Render(ctx, m.url)
	if err != nil {
		return report, fmt.Errorf("render page: %w", err)
	}

	res := extractor.Extract(doc, targets)
	report.Sections = res.Sections
	report.Skipped = res.Skipped
	report.Tickets = len(res.Snapshot)

	decisions := policy.Evaluate(m.watermark, res.Snapshot)

	var messages []string
	var pending []model.Alert
	for _, d := range decisions {
		if d.Available {
			report.Available++
		}
		if !d.Notify {
			continue
		}
		msg := policy.FormatMessage(d.TicketKey, d.Status, m.url)
		messages = append(messages, msg)
		pending = append(pending, model.Alert{TicketKey: d.TicketKey, Status: d.Status, Message: msg})
	}
	report.Notifications = len(messages)

	now := m.now()
	if len(messages) > 0 {
		m.sendNotifications(ctx, now, messages, pending)
	}

	if len(res.Snapshot) == 0 {
		slog.Info("No matching tickets found on page.", "sections", res.Sections)
		return report, nil
	}

	if err := m.dailyLog.Append(now, res.Snapshot); err != nil {
		slog.Error("failed to write daily log", "error", err)
	}
	m.recordObservations(ctx, now, decisions)

	return report, nil
}

func (m *Monitor) sendNotifications(ctx context.Context, now time.Time, messages []string, pending []model.Alert) {
	delivered := m.notify.Enabled()
	if err := m.notify.Broadcast(ctx, messages); err != nil {
		delivered = false
		slog.Error("failed to send notification", "error", err, "messages", len(messages))
	}

	if m.alerts == nil {
		return
	}
	for i := range pending {
		pending[i].Delivered = delivered
		pending[i].SentAt = now
		if err := m.alerts.Create(ctx, &pending[i]); err != nil {
			slog.Error("failed to store alert", "error", err, "key", pending[i].TicketKey)
		}
	}
}

func (m *Monitor) recordObservations(ctx context.Context, now time.Time, decisions []policy.Decision) {
	if m.observations == nil {
		return
	}
	obs := make([]model.Observation, 0, len(decisions))
	for _, d := range decisions {
		obs = append(obs, model.Observation{
			TicketKey:  d.TicketKey,
			Status:     d.Status,
			Available:  d.Available,
			ObservedAt: now,
		})
	}
	if err := m.observations.CreateBatch(ctx, obs); err != nil {
		slog.Error("failed to store observations", "error", err, "count", len(obs))
	}
}

func (m *Monitor) recordState(ctx context.Context, report CycleReport, cycleErr error) {
	m.mu.Lock()
	m.cycles++
	cycles := m.cycles
	m.mu.Unlock()

	now := m.now()
	state := &model.MonitorState{
		LastRunAt:                &now,
		TotalCycles:              cycles,
		TicketsInLastCycle:       report.Tickets,
		AvailableInLastCycle:     report.Available,
		NotificationsInLastCycle: report.Notifications,
		SkippedInLastCycle:       report.Skipped,
		IsRunning:                true,
	}
	if cycleErr != nil {
		state.LastError = cycleErr.Error()
	}

	// The caller's ctx may already be canceled on shutdown.
	stateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.state.Update(stateCtx, state); err != nil {
		slog.Error("failed to update monitor state", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
