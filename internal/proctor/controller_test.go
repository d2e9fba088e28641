package proctor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type controllerFixture struct {
	ctrl    *Controller
	ingress *gradingIngress
	ticker  *manualTicker
	clock   *fakeClock
	hub     *SignalHub

	mu     sync.Mutex
	events []Event
}

func newControllerFixture(t *testing.T, exam *model.ExamDefinition, key model.SolutionKey) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		ingress: &gradingIngress{exam: exam.Clone(), key: key},
		ticker:  newManualTicker(),
		clock:   newFakeClock(),
		hub:     NewSignalHub(),
	}
	f.ctrl = NewController("sess-1", NewPipeline(f.ingress, zerolog.Nop()),
		WithClock(f.clock.Now),
		WithCountdownOptions(WithTicker(f.ticker.factory())),
		WithObserver(func(ev Event) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		}),
	)
	return f
}

func (f *controllerFixture) eventTypes() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EventType
	for _, ev := range f.events {
		if ev.Type != EventTick {
			out = append(out, ev.Type)
		}
	}
	return out
}

func TestController_NormalSubmission(t *testing.T) {
	exam, key := capitalsExam(0)
	f := newControllerFixture(t, exam, key)

	require.NoError(t, f.ctrl.Start("Alice", exam, f.hub))
	_, timed := f.ctrl.Remaining()
	assert.False(t, timed)
	require.NoError(t, f.ctrl.RecordAnswer(0, "Paris"))
	f.clock.Advance(42600 * time.Millisecond)

	result, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 100.0, result.Percentage)
	assert.Equal(t, model.ReasonNormalSubmission, result.TerminationReason)
	assert.Equal(t, int64(43), result.DurationSeconds)

	rec := f.ctrl.Snapshot()
	assert.Equal(t, model.SessionStateSubmitted, rec.State)
	assert.Equal(t, model.ReasonNormalSubmission, rec.TerminationReason)
	require.NotNil(t, rec.EndedAt)
	assert.False(t, rec.EndedAt.Before(rec.StartedAt))

	reqs := f.ingress.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Alice", reqs[0].CandidateName)
	assert.Equal(t, "exam-1", reqs[0].ExamID)
	assert.Equal(t, []string{"Paris"}, reqs[0].Responses)

	assert.Equal(t, []EventType{EventStarted, EventTerminated, EventSubmitted}, f.eventTypes())
}

func TestController_TimeExpiry(t *testing.T) {
	exam, key := capitalsExam(1)
	f := newControllerFixture(t, exam, key)

	require.NoError(t, f.ctrl.Start("Bob", exam, f.hub))
	remaining, ok := f.ctrl.Remaining()
	require.True(t, ok)
	assert.Equal(t, 60, remaining)
	require.NoError(t, f.ctrl.RecordAnswer(0, "Paris"))

	f.ticker.advance(t, 59)
	remaining, _ = f.ctrl.Remaining()
	assert.LessOrEqual(t, remaining, 2)
	select {
	case <-f.ctrl.Done():
		t.Fatal("session ended before the limit")
	default:
	}

	f.ticker.advance(t, 1)
	result, err := f.ctrl.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTimeExpired, result.TerminationReason)
	assert.Equal(t, 1, result.Score)

	// Late signals and submissions have no effect.
	assert.False(t, f.ctrl.RequestTermination(model.ReasonTabSwitch))
	assert.Zero(t, f.hub.Emit(SignalFocusLost))
	again, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
	assert.Same(t, result, again)
	assert.Len(t, f.ingress.requests(), 1)
}

func TestController_SignalTerminates(t *testing.T) {
	exam, key := capitalsExam(5)
	f := newControllerFixture(t, exam, key)

	require.NoError(t, f.ctrl.Start("Carol", exam, f.hub))
	f.hub.Emit(SignalVisibilityHidden)

	result, err := f.ctrl.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTabSwitch, result.TerminationReason)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, model.NoAnswer, result.Evaluation[0].CandidateAnswer)

	assert.True(t, f.ticker.stopped.Load(), "countdown must be disarmed")
	assert.Zero(t, f.hub.Subscribers(), "monitor must be detached")
}

func TestController_SubmitBeforeSignal(t *testing.T) {
	exam, key := capitalsExam(1)
	f := newControllerFixture(t, exam, key)

	require.NoError(t, f.ctrl.Start("Dan", exam, f.hub))
	f.ticker.advance(t, 10)

	result, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNormalSubmission, result.TerminationReason)

	assert.Zero(t, f.hub.Emit(SignalVisibilityHidden))
	assert.Equal(t, model.ReasonNormalSubmission, f.ctrl.Snapshot().TerminationReason)
	assert.Len(t, f.ingress.requests(), 1)
}

func TestController_ConcurrentTerminationRequests(t *testing.T) {
	exam, key := capitalsExam(1)
	f := newControllerFixture(t, exam, key)
	require.NoError(t, f.ctrl.Start("Eve", exam, f.hub))

	reasons := []model.TerminationReason{
		model.ReasonNormalSubmission,
		model.ReasonTabSwitch,
		model.ReasonFocusLost,
		model.ReasonUnloadAttempted,
		model.ReasonTimeExpired,
	}

	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		winner atomic.Value
		start  = make(chan struct{})
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(reason model.TerminationReason) {
			defer wg.Done()
			<-start
			if f.ctrl.RequestTermination(reason) {
				wins.Add(1)
				winner.Store(reason)
			}
		}(reasons[i%len(reasons)])
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			f.hub.Emit(SignalFocusLost)
		}()
	}
	close(start)
	wg.Wait()

	result, err := f.ctrl.Wait(waitCtx(t))
	require.NoError(t, err)

	// The monitor may beat every direct caller; it never makes a second win.
	if wins.Load() == 1 {
		assert.Equal(t, winner.Load(), result.TerminationReason)
	} else {
		assert.Zero(t, wins.Load())
		assert.Equal(t, model.ReasonFocusLost, result.TerminationReason)
	}
	assert.Len(t, f.ingress.requests(), 1)
}

func TestController_DeliveredSignalBeatsLaterSubmit(t *testing.T) {
	exam, key := capitalsExam(5)
	f := newControllerFixture(t, exam, key)
	require.NoError(t, f.ctrl.Start("Dana", exam, f.hub))

	n, err := f.hub.Deliver(waitCtx(t), SignalVisibilityHidden)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTabSwitch, result.TerminationReason)
	assert.Len(t, f.ingress.requests(), 1)
}

func TestController_TerminationWhileStarting(t *testing.T) {
	for i := 0; i < 50; i++ {
		exam, key := capitalsExam(5)
		f := newControllerFixture(t, exam, key)

		started := make(chan error, 1)
		go func() { started <- f.ctrl.Start("Erin", exam, f.hub) }()
		for !f.ctrl.RequestTermination(model.ReasonUnloadAttempted) {
			runtime.Gosched()
		}
		require.NoError(t, <-started)

		_, err := f.ctrl.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Zero(t, f.hub.Subscribers(), "monitor must not subscribe after teardown")
		assert.True(t, f.ticker.stopped.Load(), "countdown must be armed before it is disarmed")
	}
}

func TestController_RecordAnswer(t *testing.T) {
	exam, key := capitalsExam(0)
	exam.Questions = append(exam.Questions, model.Question{ID: "2", Text: "2+2?", Options: []string{"3", "4"}})
	key = append(key, "4")
	f := newControllerFixture(t, exam, key)

	// Before start, edits are ignored.
	require.NoError(t, f.ctrl.RecordAnswer(0, "Paris"))

	require.NoError(t, f.ctrl.Start("Finn", exam, nil))
	assert.ErrorIs(t, f.ctrl.RecordAnswer(2, "x"), model.ErrInvalidIndex)
	assert.ErrorIs(t, f.ctrl.RecordAnswer(-1, "x"), model.ErrInvalidIndex)

	require.NoError(t, f.ctrl.RecordAnswer(0, "Berlin"))
	require.NoError(t, f.ctrl.RecordAnswer(0, "Paris"))
	require.NoError(t, f.ctrl.RecordAnswer(1, "4"))
	assert.Equal(t, []string{"Paris", "4"}, f.ctrl.Snapshot().Responses)

	result, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)

	require.NoError(t, f.ctrl.RecordAnswer(1, "3"))
	assert.Equal(t, []string{"Paris", "4"}, f.ctrl.Snapshot().Responses)
}

func TestController_AnswersAfterTerminationIgnored(t *testing.T) {
	exam, key := capitalsExam(0)
	f := newControllerFixture(t, exam, key)
	f.ingress.block = make(chan struct{})

	require.NoError(t, f.ctrl.Start("Gina", exam, nil))
	require.NoError(t, f.ctrl.RecordAnswer(0, "Paris"))
	require.True(t, f.ctrl.RequestTermination(model.ReasonFocusLost))

	require.NoError(t, f.ctrl.RecordAnswer(0, "Berlin"))
	close(f.ingress.block)

	result, err := f.ctrl.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, []string{"Paris"}, f.ingress.requests()[0].Responses)
}

func TestController_StartErrors(t *testing.T) {
	exam, key := capitalsExam(0)
	f := newControllerFixture(t, exam, key)

	assert.ErrorIs(t, f.ctrl.Start("Hal", nil, nil), model.ErrNoActiveExam)
	assert.Equal(t, model.SessionStateCreated, f.ctrl.Snapshot().State)

	_, err := f.ctrl.Submit(waitCtx(t))
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.False(t, f.ctrl.RequestTermination(model.ReasonTabSwitch))

	require.NoError(t, f.ctrl.Start("Hal", exam, nil))
	assert.ErrorIs(t, f.ctrl.Start("Hal", exam, nil), ErrInvalidState)
	assert.False(t, f.ctrl.RequestTermination(model.ReasonNone))

	_, err = f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
}

func TestController_ExamIsSnapshotted(t *testing.T) {
	exam, key := capitalsExam(0)
	f := newControllerFixture(t, exam, key)
	require.NoError(t, f.ctrl.Start("Ivy", exam, nil))

	exam.Questions[0].Text = "changed"
	exam.Questions = append(exam.Questions, model.Question{ID: "2"})

	got := f.ctrl.Exam()
	assert.Len(t, got.Questions, 1)
	assert.Equal(t, "Capital of France?", got.Questions[0].Text)
	assert.Len(t, f.ctrl.Snapshot().Responses, 1)

	_, err := f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
}

func TestController_PipelineFailure(t *testing.T) {
	exam, key := capitalsExam(0)
	f := newControllerFixture(t, exam, key)
	boom := errors.New("ingress unreachable")
	f.ingress.err = boom

	require.NoError(t, f.ctrl.Start("Jo", exam, nil))
	_, err := f.ctrl.Submit(waitCtx(t))
	require.ErrorIs(t, err, boom)

	rec := f.ctrl.Snapshot()
	assert.Equal(t, model.SessionStateTerminating, rec.State)
	assert.Equal(t, model.ReasonNormalSubmission, rec.TerminationReason)

	result, outErr := f.ctrl.Outcome()
	assert.Nil(t, result)
	assert.ErrorIs(t, outErr, boom)
	assert.Equal(t, []EventType{EventStarted, EventTerminated, EventFailed}, f.eventTypes())
}

func TestController_DegenerateExam(t *testing.T) {
	exam := &model.ExamDefinition{ID: "empty", Title: "Empty"}
	f := newControllerFixture(t, exam, nil)

	require.NoError(t, f.ctrl.Start("Kim", exam, nil))
	assert.Empty(t, f.ctrl.Snapshot().Responses)
	_, err := f.ctrl.Submit(waitCtx(t))
	assert.ErrorIs(t, err, grading.ErrDegenerateExam)
	assert.Equal(t, model.SessionStateTerminating, f.ctrl.Snapshot().State)
}

func TestController_WaitHonoursContext(t *testing.T) {
	exam, key := capitalsExam(1)
	f := newControllerFixture(t, exam, key)
	require.NoError(t, f.ctrl.Start("Lee", exam, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ctrl.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.ctrl.Submit(waitCtx(t))
	require.NoError(t, err)
}
