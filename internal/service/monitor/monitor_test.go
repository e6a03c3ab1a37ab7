package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/andres10976/ticketwatch/internal/config"
	"github.com/andres10976/ticketwatch/internal/model"
)

// --- mocks ---

type mockSession struct {
	renderFn func(ctx context.Context, url string) (*goquery.Document, error)
	closed   int
}

func (m *mockSession) Render(ctx context.Context, url string) (*goquery.Document, error) {
	return m.renderFn(ctx, url)
}
func (m *mockSession) Close() error {
	m.closed++
	return nil
}

type mockBroadcaster struct {
	enabled     bool
	broadcastFn func(ctx context.Context, messages []string) error
	sent        [][]string
}

func (m *mockBroadcaster) Enabled() bool { return m.enabled }
func (m *mockBroadcaster) Broadcast(ctx context.Context, messages []string) error {
	m.sent = append(m.sent, messages)
	if m.broadcastFn != nil {
		return m.broadcastFn(ctx, messages)
	}
	return nil
}

type mockLog struct {
	appendFn func(now time.Time, statuses map[string]string) error
	rows     []map[string]string
}

func (m *mockLog) Append(now time.Time, statuses map[string]string) error {
	m.rows = append(m.rows, statuses)
	if m.appendFn != nil {
		return m.appendFn(now, statuses)
	}
	return nil
}

type mockStateStore struct {
	updates []model.MonitorState
	running []bool
}

func (m *mockStateStore) Update(ctx context.Context, state *model.MonitorState) error {
	m.updates = append(m.updates, *state)
	return nil
}
func (m *mockStateStore) SetRunning(ctx context.Context, running bool) error {
	m.running = append(m.running, running)
	return nil
}

type mockObservations struct {
	createFn func(ctx context.Context, obs []model.Observation) error
	batches  [][]model.Observation
}

func (m *mockObservations) CreateBatch(ctx context.Context, obs []model.Observation) error {
	m.batches = append(m.batches, obs)
	if m.createFn != nil {
		return m.createFn(ctx, obs)
	}
	return nil
}

type mockAlerts struct {
	created []model.Alert
}

func (m *mockAlerts) Create(ctx context.Context, alert *model.Alert) error {
	m.created = append(m.created, *alert)
	return nil
}

// --- helpers ---

const targetURL = "https://example.com/detail"

type ticket struct {
	title, status string
}

func pageHTML(section string, tickets ...ticket) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="block-ticket-article ` + section + `">`)
	for _, t := range tickets {
		fmt.Fprintf(&b, `<div class="block-ticket"><h3 class="block-ticket__title">%s</h3><p class="ticket-status">%s</p></div>`, t.title, t.status)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func docOf(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func day1Targets() config.TargetFile {
	return config.TargetFile{
		TargetTickets: []model.Target{{ID: "d20240601", Name: "Day1", Keywords: []string{"S席"}}},
		CheckInterval: 120,
	}
}

type fixture struct {
	pages    []string
	sessions []*mockSession
	openErr  error
	notify   *mockBroadcaster
	log      *mockLog
	state    *mockStateStore
	obs      *mockObservations
	alerts   *mockAlerts
}

func newFixture(pages ...string) *fixture {
	return &fixture{
		pages:  pages,
		notify: &mockBroadcaster{enabled: true},
		log:    &mockLog{},
		state:  &mockStateStore{},
		obs:    &mockObservations{},
		alerts: &mockAlerts{},
	}
}

func (f *fixture) monitor(t *testing.T, targets TargetLoader, opts Options) *Monitor {
	t.Helper()
	open := func(ctx context.Context) (PageSession, error) {
		if f.openErr != nil {
			return nil, f.openErr
		}
		idx := len(f.sessions)
		s := &mockSession{renderFn: func(ctx context.Context, url string) (*goquery.Document, error) {
			if url != targetURL {
				t.Errorf("render url = %q, want %q", url, targetURL)
			}
			if idx >= len(f.pages) {
				return nil, errors.New("no more pages")
			}
			return docOf(t, f.pages[idx]), nil
		}}
		f.sessions = append(f.sessions, s)
		return s, nil
	}
	opts.Observations = f.obs
	opts.Alerts = f.alerts
	return New(targetURL, open, targets, f.notify, f.log, f.state, opts)
}

// --- RunCycle tests ---

func TestRunCycle_NoTargets(t *testing.T) {
	f := newFixture()
	m := f.monitor(t, func() config.TargetFile { return config.TargetFile{} }, Options{})

	report, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Targets != 0 {
		t.Errorf("Targets = %d, want 0", report.Targets)
	}
	if len(f.sessions) != 0 {
		t.Error("browser should not be opened without targets")
	}
	if len(f.log.rows) != 0 || len(f.notify.sent) != 0 {
		t.Error("no log row and no notification expected")
	}
}

func TestRunCycle_NotifiesOnceThenLogs(t *testing.T) {
	page := pageHTML("d20240601",
		ticket{"S席 指定席", "  残り\nわずか  "},
		ticket{"A席 指定席", "受付中"},
	)
	f := newFixture(page, page)
	m := f.monitor(t, day1Targets, Options{})

	report, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	if report.Tickets != 1 || report.Available != 1 || report.Notifications != 1 {
		t.Errorf("first report = %+v", report)
	}
	if len(f.notify.sent) != 1 || len(f.notify.sent[0]) != 1 {
		t.Fatalf("sent = %v, want one broadcast with one message", f.notify.sent)
	}
	want := "【AVAILABLE】\nDay1 [S席 指定席]\nStatus: 残りわずか\nLink: " + targetURL
	if f.notify.sent[0][0] != want {
		t.Errorf("message = %q, want %q", f.notify.sent[0][0], want)
	}

	report, err = m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if report.Notifications != 0 {
		t.Errorf("second cycle notifications = %d, want 0", report.Notifications)
	}
	if len(f.notify.sent) != 1 {
		t.Errorf("broadcasts = %d, want still 1", len(f.notify.sent))
	}
	if len(f.log.rows) != 2 {
		t.Errorf("log rows = %d, want one per cycle", len(f.log.rows))
	}
	if f.log.rows[1]["Day1 [S席 指定席]"] != "残りわずか" {
		t.Errorf("logged row = %v", f.log.rows[1])
	}
	for i, s := range f.sessions {
		if s.closed != 1 {
			t.Errorf("session %d closed %d times, want 1", i, s.closed)
		}
	}
}

func TestRunCycle_RearmsAfterUnavailable(t *testing.T) {
	f := newFixture(
		pageHTML("d20240601", ticket{"S席", "残りわずか"}),
		pageHTML("d20240601", ticket{"S席", "予定枚数終了"}),
		pageHTML("d20240601", ticket{"S席", "残りわずか"}),
	)
	m := f.monitor(t, day1Targets, Options{})

	want := []int{1, 0, 1}
	for i, n := range want {
		report, err := m.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d error = %v", i, err)
		}
		if report.Notifications != n {
			t.Errorf("cycle %d notifications = %d, want %d", i, report.Notifications, n)
		}
	}
	if len(f.notify.sent) != 2 {
		t.Errorf("broadcasts = %d, want 2", len(f.notify.sent))
	}
}

func TestRunCycle_EmptySnapshot(t *testing.T) {
	f := newFixture(pageHTML("d20240999", ticket{"S席", "受付中"}))
	m := f.monitor(t, day1Targets, Options{})

	report, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Tickets != 0 {
		t.Errorf("Tickets = %d, want 0", report.Tickets)
	}
	if len(f.log.rows) != 0 {
		t.Error("empty snapshot should not produce a log row")
	}
	if len(f.notify.sent) != 0 {
		t.Error("empty snapshot should not notify")
	}
	if len(f.obs.batches) != 0 {
		t.Error("empty snapshot should not record observations")
	}
	if f.sessions[0].closed != 1 {
		t.Error("session should be closed")
	}
}

func TestRunCycle_OpenError(t *testing.T) {
	f := newFixture()
	f.openErr = errors.New("chrome not found")
	m := f.monitor(t, day1Targets, Options{})

	_, err := m.RunCycle(context.Background())
	if !errors.Is(err, f.openErr) {
		t.Errorf("RunCycle() error = %v, want wrapped open error", err)
	}
}

func TestRunCycle_RenderErrorClosesSession(t *testing.T) {
	f := newFixture() // no pages: render fails
	m := f.monitor(t, day1Targets, Options{})

	if _, err := m.RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle() error = nil, want render error")
	}
	if len(f.sessions) != 1 || f.sessions[0].closed != 1 {
		t.Error("session must be closed after a render error")
	}
}

func TestRunCycle_NotifyFailureDoesNotBlockLog(t *testing.T) {
	f := newFixture(pageHTML("d20240601", ticket{"S席", "受付中"}))
	f.notify.broadcastFn = func(ctx context.Context, messages []string) error {
		return errors.New("line down")
	}
	m := f.monitor(t, day1Targets, Options{})

	if _, err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v, notification errors must not fail the cycle", err)
	}
	if len(f.log.rows) != 1 {
		t.Errorf("log rows = %d, want 1", len(f.log.rows))
	}
	if len(f.alerts.created) != 1 || f.alerts.created[0].Delivered {
		t.Errorf("alerts = %+v, want one undelivered alert", f.alerts.created)
	}
}

func TestRunCycle_LogFailureDoesNotBlockHistory(t *testing.T) {
	f := newFixture(pageHTML("d20240601", ticket{"S席", "受付中"}))
	f.log.appendFn = func(now time.Time, statuses map[string]string) error {
		return errors.New("disk full")
	}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	m := f.monitor(t, day1Targets, Options{Now: func() time.Time { return now }})

	if _, err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(f.notify.sent) != 1 {
		t.Error("log failure must not block notification")
	}
	if len(f.obs.batches) != 1 || len(f.obs.batches[0]) != 1 {
		t.Fatalf("observations = %v, want one batch with one entry", f.obs.batches)
	}
	o := f.obs.batches[0][0]
	if o.TicketKey != "Day1 [S席]" || !o.Available || !o.ObservedAt.Equal(now) {
		t.Errorf("observation = %+v", o)
	}
	if len(f.alerts.created) != 1 || !f.alerts.created[0].Delivered {
		t.Errorf("alerts = %+v, want one delivered alert", f.alerts.created)
	}
}

func TestRunCycle_NotifierDisabledMarksUndelivered(t *testing.T) {
	f := newFixture(pageHTML("d20240601", ticket{"S席", "受付中"}))
	f.notify.enabled = false
	m := f.monitor(t, day1Targets, Options{})

	if _, err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(f.alerts.created) != 1 || f.alerts.created[0].Delivered {
		t.Errorf("alerts = %+v, want undelivered", f.alerts.created)
	}
}

func TestRunCycle_ConfigReloadedEachCycle(t *testing.T) {
	page := pageHTML("d20240601", ticket{"S席", "受付中"}, ticket{"A席", "受付中"})
	f := newFixture(page, page)

	calls := 0
	targets := func() config.TargetFile {
		calls++
		if calls == 1 {
			return day1Targets()
		}
		return config.TargetFile{TargetTickets: []model.Target{{ID: "d20240601", Name: "Day1"}}}
	}
	m := f.monitor(t, targets, Options{})

	m.RunCycle(context.Background())
	report, _ := m.RunCycle(context.Background())
	if report.Tickets != 2 {
		t.Errorf("second cycle tickets = %d, want 2 after keywords removed", report.Tickets)
	}
}

// --- Run loop tests ---

func TestRun_ImmediateCycleThenInterval(t *testing.T) {
	page := pageHTML("d20240601", ticket{"S席", "受付中"})
	f := newFixture(page, page, page)

	var slept []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	m := f.monitor(t, day1Targets, Options{Sleep: sleep})
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(f.sessions) != 3 {
		t.Errorf("cycles = %d, want 3 (first one before any sleep)", len(f.sessions))
	}
	for i, d := range slept {
		if d != 120*time.Second {
			t.Errorf("sleep[%d] = %v, want configured 120s", i, d)
		}
	}
	if len(f.state.running) != 2 || !f.state.running[0] || f.state.running[1] {
		t.Errorf("running transitions = %v, want [true false]", f.state.running)
	}
	if n := len(f.state.updates); n != 3 || f.state.updates[n-1].TotalCycles != 3 {
		t.Errorf("state updates = %+v", f.state.updates)
	}
}

func TestRun_FailedCycleBacksOff(t *testing.T) {
	f := newFixture(pageHTML("d20240601", ticket{"S席", "受付中"}))
	f.openErr = errors.New("chrome crashed")

	var slept []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 2 {
			f.openErr = nil
		}
		if len(slept) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	m := f.monitor(t, day1Targets, Options{Sleep: sleep})
	m.Run(ctx)

	want := []time.Duration{DefaultErrorBackoff, DefaultErrorBackoff, 120 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
	if f.state.updates[0].LastError == "" {
		t.Error("failed cycle should record last error")
	}
	if f.state.updates[2].LastError != "" {
		t.Errorf("successful cycle LastError = %q, want empty", f.state.updates[2].LastError)
	}
}

func TestRun_PanicRecovered(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panicky := func() config.TargetFile { panic("bad config") }
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		cancel()
		return ctx.Err()
	}

	m := f.monitor(t, panicky, Options{Sleep: sleep, ErrorBackoff: 5 * time.Second})
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Errorf("sleeps = %v, want one backoff of 5s", slept)
	}
}

func TestWatermarks(t *testing.T) {
	f := newFixture(pageHTML("d20240601", ticket{"S席", "受付中"}))
	m := f.monitor(t, day1Targets, Options{})
	m.RunCycle(context.Background())

	entries := m.Watermarks()
	if len(entries) != 1 || entries[0].TicketKey != "Day1 [S席]" || !entries[0].Available {
		t.Errorf("Watermarks() = %+v", entries)
	}
}

func TestSleepCtx_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() error = %v, want context.Canceled", err)
	}
}
