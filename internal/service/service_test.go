package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	reports []*model.ResultReport
	err     error
}

func (d *recordingDispatcher) Name() string { return "recording" }

func (d *recordingDispatcher) Dispatch(_ context.Context, r *model.ResultReport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, r)
	return d.err
}

func (d *recordingDispatcher) received() []*model.ResultReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*model.ResultReport(nil), d.reports...)
}

type recordingArchive struct {
	mu      sync.Mutex
	reports []*model.ResultReport
}

func (a *recordingArchive) Enqueue(_ context.Context, r *model.ResultReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return errors.New("redis unavailable")
}

type testStack struct {
	exams      *ExamService
	grading    *GradingService
	dispatcher *recordingDispatcher
	archive    *recordingArchive
	tokens     *TokenService
	monitor    *MonitorService
	sessions   *SessionService
	feed       *repository.MemoryMonitorFeed
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	log := zerolog.Nop()
	st := &testStack{
		dispatcher: &recordingDispatcher{},
		archive:    &recordingArchive{},
		tokens:     NewTokenService("test-secret", time.Hour),
		feed:       repository.NewMemoryMonitorFeed(),
	}
	st.exams = NewExamService(repository.NewMemoryExamStore(), log)
	st.grading = NewGradingService(st.exams, st.dispatcher, st.archive, "fallback@example.com", log)
	st.monitor = NewMonitorService(st.feed, log)
	st.sessions = NewSessionService(context.Background(), st.exams, st.grading, st.tokens, st.monitor,
		SessionOptions{TickInterval: time.Millisecond, Retention: time.Minute, SubmitTimeout: time.Second}, log)
	return st
}

func geographyRequest(minutes int) *model.ConfigureExamRequest {
	return &model.ConfigureExamRequest{
		Title: "Geography",
		Questions: []model.Question{
			{ID: "q1", Text: "Capital of France?", Options: []string{"Paris", "Berlin"}},
			{ID: "q2", Text: "Capital of Italy?", Options: []string{"Madrid", "Rome"}},
			{ID: "q3", Text: "Capital of Spain?", Options: []string{"Madrid", "Lisbon"}},
		},
		SolutionKey:      []string{"Paris", "Rome", "Madrid"},
		TimeLimitMinutes: minutes,
	}
}

func (st *testStack) configure(t *testing.T, req *model.ConfigureExamRequest) string {
	t.Helper()
	id, err := st.exams.Configure(context.Background(), req)
	require.NoError(t, err)
	return id
}

func decodeEvents(t *testing.T, ch <-chan []byte, n int) []model.MonitorEvent {
	t.Helper()
	out := make([]model.MonitorEvent, 0, n)
	for len(out) < n {
		select {
		case payload := <-ch:
			var ev model.MonitorEvent
			require.NoError(t, json.Unmarshal(payload, &ev))
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d monitor events", len(out), n)
		}
	}
	return out
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
