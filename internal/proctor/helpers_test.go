package proctor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// manualTicker lets tests drive a countdown one tick at a time.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}

// advance delivers n ticks; each send blocks until the countdown takes it.
func (m *manualTicker) advance(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case m.ch <- time.Time{}:
		case <-time.After(time.Second):
			t.Fatalf("countdown did not accept tick %d", i+1)
		}
	}
}

// fakeClock returns a settable time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// gradingIngress grades in memory and records every request it receives.
type gradingIngress struct {
	exam  *model.ExamDefinition
	key   model.SolutionKey
	err   error
	block chan struct{}

	mu    sync.Mutex
	calls []*model.GradingRequest
}

func (g *gradingIngress) SubmitSession(ctx context.Context, req *model.GradingRequest) (*model.GradedResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return grading.Grade(grading.Input{
		Questions: g.exam.Questions,
		Key:       g.key,
		Responses: req.Responses,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
		Reason:    req.TerminationReason,
	})
}

func (g *gradingIngress) requests() []*model.GradingRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*model.GradingRequest(nil), g.calls...)
}

func capitalsExam(minutes int) (*model.ExamDefinition, model.SolutionKey) {
	return &model.ExamDefinition{
		ID:               "exam-1",
		Title:            "Geography",
		TimeLimitMinutes: minutes,
		Questions: []model.Question{
			{ID: "1", Text: "Capital of France?", Options: []string{"Paris", "Berlin"}},
		},
	}, model.SolutionKey{"Paris"}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
