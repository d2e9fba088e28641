package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Session errors.
var (
	ErrSessionNotActive = errors.New("session is no longer active")
	ErrUnknownSignal    = errors.New("unknown environment signal")
)

var _ proctor.GradingIngress = (*GradingService)(nil)

const (
	watcherBuffer  = 32
	publishTimeout = 2 * time.Second
	signalTimeout  = 2 * time.Second
)

// SessionOptions tunes the sessions created by a SessionService.
type SessionOptions struct {
	TickInterval  time.Duration
	Retention     time.Duration
	SubmitTimeout time.Duration
}

// StartedSession is returned when a candidate begins an exam.
type StartedSession struct {
	Session   model.SessionRecord   `json:"session"`
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expires_at"`
	Exam      *model.ExamDefinition `json:"exam"`
}

// SessionTokenIssuer signs the token handed out when a session starts.
type SessionTokenIssuer interface {
	GenerateSessionToken(sessionID, examID string) (string, time.Time, error)
}

type liveSession struct {
	ctrl *proctor.Controller
	hub  *proctor.SignalHub

	mu       sync.Mutex
	watchers map[chan proctor.Event]struct{}
}

func (ls *liveSession) broadcast(ev proctor.Event) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ch := range ls.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SessionService is the registry of proctored sessions held by this server.
// Each session runs its own controller; the registry only routes requests.
type SessionService struct {
	exams   *ExamService
	ingress proctor.GradingIngress
	tokens  SessionTokenIssuer
	monitor *MonitorService
	opts    SessionOptions
	log     zerolog.Logger
	baseCtx context.Context

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// NewSessionService creates a SessionService. monitor may be nil.
func NewSessionService(
	baseCtx context.Context,
	exams *ExamService,
	ingress proctor.GradingIngress,
	tokens SessionTokenIssuer,
	monitor *MonitorService,
	opts SessionOptions,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		exams:    exams,
		ingress:  ingress,
		tokens:   tokens,
		monitor:  monitor,
		opts:     opts,
		log:      log.With().Str("component", "session_service").Logger(),
		baseCtx:  baseCtx,
		sessions: make(map[string]*liveSession),
	}
}

// Start begins a session against the active exam and returns a token that
// authorizes further calls for it.
func (s *SessionService) Start(ctx context.Context, candidateName string) (*StartedSession, error) {
	cfg, err := s.exams.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	token, expires, err := s.tokens.GenerateSessionToken(id, cfg.Definition.ID)
	if err != nil {
		return nil, err
	}

	ls := &liveSession{
		hub:      proctor.NewSignalHub(),
		watchers: make(map[chan proctor.Event]struct{}),
	}

	opts := []proctor.ControllerOption{
		proctor.WithLogger(s.log),
		proctor.WithObserver(func(ev proctor.Event) { s.observe(ls, ev) }),
		proctor.WithBaseContext(s.baseCtx),
		proctor.WithSubmitTimeout(s.opts.SubmitTimeout),
	}
	if s.opts.TickInterval > 0 {
		opts = append(opts, proctor.WithCountdownOptions(proctor.WithTickInterval(s.opts.TickInterval)))
	}
	ls.ctrl = proctor.NewController(id, proctor.NewPipeline(s.ingress, s.log), opts...)

	s.mu.Lock()
	s.sessions[id] = ls
	s.mu.Unlock()

	def := cfg.Definition
	if err := ls.ctrl.Start(candidateName, &def, ls.hub); err != nil {
		s.remove(id)
		return nil, err
	}

	return &StartedSession{
		Session:   ls.ctrl.Snapshot(),
		Token:     token,
		ExpiresAt: expires,
		Exam:      ls.ctrl.Exam().Clone(),
	}, nil
}

// Get returns the current view of a session.
func (s *SessionService) Get(id string) (*model.SessionView, error) {
	ls, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return view(ls.ctrl), nil
}

// Exam returns the definition a session is running against.
func (s *SessionService) Exam(id string) (*model.ExamDefinition, error) {
	ls, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return ls.ctrl.Exam().Clone(), nil
}

// RecordAnswer stores an answer for an active session.
func (s *SessionService) RecordAnswer(id string, index int, value string) error {
	ls, err := s.lookup(id)
	if err != nil {
		return err
	}
	if ls.ctrl.Snapshot().State != model.SessionStateActive {
		return ErrSessionNotActive
	}
	return ls.ctrl.RecordAnswer(index, value)
}

// Signal feeds an environment signal into the session's integrity monitor
// and returns once the monitor has acted on it, so a request that arrives
// after the reply cannot overtake the signal. accepted is false when the
// session no longer listens.
func (s *SessionService) Signal(ctx context.Context, id string, sig proctor.Signal) (bool, error) {
	if _, ok := sig.Reason(); !ok {
		return false, ErrUnknownSignal
	}
	ls, err := s.lookup(id)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, signalTimeout)
	defer cancel()
	n, err := ls.hub.Deliver(ctx, sig)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", id).Str("signal", string(sig)).
			Msg("Signal not acknowledged in time")
	}
	return n > 0, nil
}

// Submit ends the session normally unless it already ended, then waits for
// its single outcome. When grading failed the view is returned together with
// the pipeline error.
func (s *SessionService) Submit(ctx context.Context, id string) (*model.SessionView, error) {
	ls, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	_, err = ls.ctrl.Submit(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return view(ls.ctrl), err
}

// Watch streams lifecycle events of a session until cancel is called.
// Events are dropped for a watcher that does not keep up.
func (s *SessionService) Watch(id string) (<-chan proctor.Event, func(), error) {
	ls, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan proctor.Event, watcherBuffer)
	ls.mu.Lock()
	ls.watchers[ch] = struct{}{}
	ls.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.watchers, ch)
			ls.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Done returns a channel closed when the session's pipeline has run.
func (s *SessionService) Done(id string) (<-chan struct{}, error) {
	ls, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return ls.ctrl.Done(), nil
}

// List returns the records of all held sessions, oldest first.
func (s *SessionService) List() []model.SessionRecord {
	s.mu.RLock()
	records := make([]model.SessionRecord, 0, len(s.sessions))
	for _, ls := range s.sessions {
		records = append(records, ls.ctrl.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records
}

// Summaries is List without the candidates' answers.
func (s *SessionService) Summaries() []model.SessionSummary {
	records := s.List()
	out := make([]model.SessionSummary, len(records))
	for i, rec := range records {
		out[i] = rec.Summary()
	}
	return out
}

// Stats summarizes the held sessions.
func (s *SessionService) Stats() model.MonitorStats {
	var stats model.MonitorStats
	for _, rec := range s.List() {
		stats.TotalJoined++
		switch rec.State {
		case model.SessionStateActive:
			stats.TotalActive++
		case model.SessionStateSubmitted:
			stats.TotalSubmitted++
		case model.SessionStateTerminating:
			stats.TotalFailed++
		}
		if rec.TerminationReason.IsIntegrityViolation() {
			stats.TotalViolations++
		}
	}
	return stats
}

// RunJanitor drops finished sessions once they are older than the retention
// period. It blocks until ctx is done.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sweep(now); n > 0 {
				s.log.Debug().Int("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}

func (s *SessionService) sweep(now time.Time) int {
	cutoff := now.Add(-s.opts.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ls := range s.sessions {
		select {
		case <-ls.ctrl.Done():
		default:
			continue
		}
		rec := ls.ctrl.Snapshot()
		if rec.EndedAt != nil && rec.EndedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionService) lookup(id string) (*liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return ls, nil
}

func (s *SessionService) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *SessionService) observe(ls *liveSession, ev proctor.Event) {
	ls.broadcast(ev)

	if s.monitor == nil || ev.Type == proctor.EventTick {
		return
	}
	rec := ls.ctrl.Snapshot()
	mev := model.MonitorEvent{
		SessionID:          rec.ID,
		ExamID:             rec.ExamID,
		CandidateName:      rec.CandidateName,
		TerminationReason:  ev.Reason,
		IntegrityViolation: ev.Reason.IsIntegrityViolation(),
		At:                 time.Now().UTC(),
	}
	switch ev.Type {
	case proctor.EventStarted:
		mev.Type = model.MonitorSessionStarted
	case proctor.EventTerminated:
		mev.Type = model.MonitorSessionTerminated
	case proctor.EventSubmitted:
		mev.Type = model.MonitorSessionSubmitted
		mev.Score = &ev.Result.Score
		mev.TotalQuestions = ev.Result.TotalQuestions
	case proctor.EventFailed:
		mev.Type = model.MonitorSessionFailed
		mev.Error = ev.Err.Error()
	default:
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, publishTimeout)
	defer cancel()
	s.monitor.Publish(ctx, mev)
}

func view(ctrl *proctor.Controller) *model.SessionView {
	v := &model.SessionView{Session: ctrl.Snapshot()}
	if remaining, ok := ctrl.Remaining(); ok && v.Session.State == model.SessionStateActive {
		v.RemainingSeconds = &remaining
	}
	result, err := ctrl.Outcome()
	v.Result = result.ForCandidate()
	if err != nil {
		v.Error = err.Error()
	}
	return v
}
