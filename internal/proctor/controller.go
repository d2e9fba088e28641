package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrInvalidState = errors.New("session is not in the required state")
	ErrNotStarted   = errors.New("session has not started")
)

// DefaultSubmitTimeout bounds a single pipeline run.
const DefaultSubmitTimeout = 30 * time.Second

// Submitter is the submission pipeline as seen by the controller.
type Submitter interface {
	Submit(ctx context.Context, record model.SessionRecord) (*model.GradedResult, error)
}

// EventType names lifecycle notifications emitted by a controller.
type EventType string

const (
	EventStarted    EventType = "started"
	EventTick       EventType = "tick"
	EventTerminated EventType = "terminated"
	EventSubmitted  EventType = "submitted"
	EventFailed     EventType = "failed"
)

// Event is passed to the observer registered with WithObserver.
type Event struct {
	Type      EventType
	SessionID string
	Remaining int
	Reason    model.TerminationReason
	Result    *model.GradedResult
	Err       error
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// WithObserver registers a callback for lifecycle events. It runs on
// internal goroutines and must return quickly.
func WithObserver(fn func(Event)) ControllerOption {
	return func(c *Controller) { c.observer = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithCountdownOptions passes options to the session countdown.
func WithCountdownOptions(opts ...CountdownOption) ControllerOption {
	return func(c *Controller) { c.countdownOpts = append(c.countdownOpts, opts...) }
}

// WithSubmitTimeout bounds the pipeline call.
func WithSubmitTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// WithBaseContext sets the parent context of pipeline calls.
func WithBaseContext(ctx context.Context) ControllerOption {
	return func(c *Controller) { c.baseCtx = ctx }
}

type answerEvent struct {
	index int
	value string
	reply chan error
}

// Controller owns one candidate session. Answer edits and the termination
// are serialized through a single event loop; the termination reason is a
// compare-and-set slot so that exactly one request ever wins.
type Controller struct {
	id       string
	pipeline Submitter
	log      zerolog.Logger
	observer func(Event)
	now      func() time.Time

	countdownOpts []CountdownOption
	submitTimeout time.Duration
	baseCtx       context.Context

	reason  atomic.Pointer[model.TerminationReason]
	started atomic.Bool

	mu        sync.RWMutex
	record    model.SessionRecord
	exam      *model.ExamDefinition
	countdown *Countdown
	monitor   *Monitor
	result    *model.GradedResult
	err       error

	answers   chan answerEvent
	terminate chan struct{}
	// ready is closed once the countdown and the monitor are armed.
	ready chan struct{}
	done  chan struct{}
}

// NewController creates a session in the CREATED state.
func NewController(id string, pipeline Submitter, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:            id,
		pipeline:      pipeline,
		log:           zerolog.Nop(),
		now:           time.Now,
		submitTimeout: DefaultSubmitTimeout,
		baseCtx:       context.Background(),
		record:        model.SessionRecord{ID: id, State: model.SessionStateCreated},
		answers:       make(chan answerEvent),
		terminate:     make(chan struct{}, 1),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("session_id", id).Logger()
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Start begins the session against a private copy of exam. The countdown is
// armed when the exam has a time limit, and the integrity monitor listens on
// source (which may be nil).
func (c *Controller) Start(candidateName string, exam *model.ExamDefinition, source SignalSource) error {
	c.mu.Lock()
	if c.record.State != model.SessionStateCreated {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if exam == nil {
		c.mu.Unlock()
		return model.ErrNoActiveExam
	}

	c.exam = exam.Clone()
	c.record = model.SessionRecord{
		ID:            c.id,
		ExamID:        c.exam.ID,
		CandidateName: candidateName,
		StartedAt:     c.now(),
		Responses:     make([]string, len(c.exam.Questions)),
		State:         model.SessionStateActive,
	}
	if limit := c.exam.TimeLimit(); limit > 0 {
		opts := append([]CountdownOption{WithTickHandler(c.onTick)}, c.countdownOpts...)
		c.countdown = NewCountdown(int(limit/time.Second), opts...)
	}
	c.monitor = NewMonitor(c, c.log.With().Str("component", "integrity_monitor").Logger())
	countdown, monitor := c.countdown, c.monitor
	c.mu.Unlock()

	c.started.Store(true)
	go c.run()

	var expired <-chan struct{}
	if countdown != nil {
		expired = countdown.Expired()
		if err := countdown.Start(); err != nil {
			c.log.Error().Err(err).Msg("Countdown failed to start")
		}
	}
	monitor.Watch(source, expired)
	close(c.ready)

	c.log.Info().
		Str("exam_id", c.exam.ID).
		Str("candidate", candidateName).
		Int("questions", len(c.exam.Questions)).
		Int("time_limit_minutes", c.exam.TimeLimitMinutes).
		Msg("Session started")
	c.notify(Event{Type: EventStarted})
	return nil
}

// RecordAnswer stores value as the answer to question index. Edits that
// arrive after a termination was requested are ignored without error.
func (c *Controller) RecordAnswer(index int, value string) error {
	if !c.started.Load() || c.reason.Load() != nil {
		return nil
	}
	ev := answerEvent{index: index, value: value, reply: make(chan error, 1)}
	select {
	case c.answers <- ev:
	case <-c.done:
		return nil
	}
	return <-ev.reply
}

// RequestTermination ends the session for reason. Only the first call wins;
// every later call, from any source, is a no-op and returns false.
func (c *Controller) RequestTermination(reason model.TerminationReason) bool {
	if !reason.Valid() || !c.started.Load() {
		return false
	}
	r := reason
	if !c.reason.CompareAndSwap(nil, &r) {
		return false
	}
	c.terminate <- struct{}{}
	return true
}

// Submit is the candidate's explicit submission. It competes with automatic
// signals under the same guard and returns the session's single outcome.
func (c *Controller) Submit(ctx context.Context) (*model.GradedResult, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}
	c.RequestTermination(model.ReasonNormalSubmission)
	return c.Wait(ctx)
}

// Wait blocks until the session left the event loop and returns its outcome.
func (c *Controller) Wait(ctx context.Context) (*model.GradedResult, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result, c.err
}

// Done is closed once the pipeline has run.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Snapshot returns a copy of the session record.
func (c *Controller) Snapshot() model.SessionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.Clone()
}

// Exam returns the definition the session was started with.
func (c *Controller) Exam() *model.ExamDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exam
}

// Outcome returns the graded result and pipeline error, if any.
func (c *Controller) Outcome() (*model.GradedResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result, c.err
}

// Remaining returns the countdown's seconds left; ok is false for untimed
// sessions.
func (c *Controller) Remaining() (seconds int, ok bool) {
	c.mu.RLock()
	countdown := c.countdown
	c.mu.RUnlock()
	if countdown == nil {
		return 0, false
	}
	return countdown.Remaining(), true
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case ev := <-c.answers:
			ev.reply <- c.applyAnswer(ev.index, ev.value)
		case <-c.terminate:
			c.finish()
			return
		}
	}
}

func (c *Controller) applyAnswer(index int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.record.State != model.SessionStateActive || c.reason.Load() != nil {
		return nil
	}
	if index < 0 || index >= len(c.record.Responses) {
		return model.ErrInvalidIndex
	}
	c.record.Responses[index] = value
	return nil
}

func (c *Controller) finish() {
	// A termination requested while Start is still arming must not tear
	// down the countdown or the monitor before they exist.
	<-c.ready
	reason := *c.reason.Load()

	c.mu.Lock()
	countdown, monitor := c.countdown, c.monitor
	c.mu.Unlock()

	if countdown != nil {
		countdown.Stop()
	}
	monitor.Stop()

	c.mu.Lock()
	ended := c.now()
	c.record.State = model.SessionStateTerminating
	c.record.EndedAt = &ended
	c.record.TerminationReason = reason
	snapshot := c.record.Clone()
	c.mu.Unlock()

	c.log.Info().Str("reason", string(reason)).Msg("Session terminating")
	c.notify(Event{Type: EventTerminated, Reason: reason})

	ctx, cancel := context.WithTimeout(c.baseCtx, c.submitTimeout)
	result, err := c.pipeline.Submit(ctx, snapshot)
	cancel()

	c.mu.Lock()
	if err != nil {
		c.err = err
	} else {
		c.result = result
		c.record.State = model.SessionStateSubmitted
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msg("Submission pipeline failed")
		c.notify(Event{Type: EventFailed, Reason: reason, Err: err})
		return
	}
	c.log.Info().
		Int("score", result.Score).
		Int("total", result.TotalQuestions).
		Msg("Session submitted")
	c.notify(Event{Type: EventSubmitted, Reason: reason, Result: result})
}

func (c *Controller) onTick(remaining int) {
	c.notify(Event{Type: EventTick, Remaining: remaining})
}

func (c *Controller) notify(ev Event) {
	if c.observer == nil {
		return
	}
	ev.SessionID = c.id
	c.observer(ev)
}
