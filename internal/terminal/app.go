// Package terminal runs a proctored exam session in a text terminal. The
// session controller runs locally and submits through a remote grading
// ingress. Losing terminal focus, suspending the process or trying to quit
// terminate the session the same way browser signals do.
package terminal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const (
	eventBuffer   = 16
	readBuffer    = 64
	signalTimeout = time.Second
)

// ExamSource provides the exam a terminal session runs.
type ExamSource interface {
	ActiveExam(ctx context.Context) (*model.ExamDefinition, error)
}

// Option configures an App.
type Option func(*App)

// WithSignals feeds process-level environment signals into the session.
func WithSignals(ch <-chan proctor.Signal) Option {
	return func(a *App) { a.signals = ch }
}

// WithWidth sets the screen width used for wrapping.
func WithWidth(w int) Option {
	return func(a *App) { a.width = w }
}

// WithTickInterval overrides the countdown tick.
func WithTickInterval(d time.Duration) Option {
	return func(a *App) { a.tickInterval = d }
}

// WithSubmitTimeout bounds the remote submission.
func WithSubmitTimeout(d time.Duration) Option {
	return func(a *App) { a.submitTimeout = d }
}

// App is a single-candidate terminal session.
type App struct {
	exams   ExamSource
	ingress proctor.GradingIngress
	in      io.Reader
	out     io.Writer
	log     zerolog.Logger

	signals       <-chan proctor.Signal
	width         int
	tickInterval  time.Duration
	submitTimeout time.Duration
}

// NewApp creates an App reading keys from in and drawing to out.
func NewApp(exams ExamSource, ingress proctor.GradingIngress, in io.Reader, out io.Writer, log zerolog.Logger, opts ...Option) *App {
	a := &App{
		exams:   exams,
		ingress: ingress,
		in:      in,
		out:     out,
		log:     log.With().Str("component", "terminal").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type session struct {
	ctrl      *proctor.Controller
	hub       *proctor.SignalHub
	exam      *model.ExamDefinition
	candidate string

	cursor     int
	highlight  int
	remaining  int
	confirming bool
	ended      bool
	status     string
}

// Run fetches the active exam and proctors one session for candidate until
// it is graded. The exam is returned together with the result so callers
// can print a summary.
func (a *App) Run(ctx context.Context, candidate string) (*model.ExamDefinition, *model.GradedResult, error) {
	exam, err := a.exams.ActiveExam(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch active exam: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)

	events := make(chan proctor.Event, eventBuffer)
	opts := []proctor.ControllerOption{
		proctor.WithLogger(a.log),
		proctor.WithBaseContext(context.WithoutCancel(ctx)),
		proctor.WithSubmitTimeout(a.submitTimeout),
		proctor.WithObserver(func(ev proctor.Event) {
			select {
			case events <- ev:
			case <-stop:
			}
		}),
	}
	if a.tickInterval > 0 {
		opts = append(opts, proctor.WithCountdownOptions(proctor.WithTickInterval(a.tickInterval)))
	}

	s := &session{
		ctrl:      proctor.NewController(uuid.NewString(), proctor.NewPipeline(a.ingress, a.log), opts...),
		hub:       proctor.NewSignalHub(),
		candidate: candidate,
	}
	if err := s.ctrl.Start(candidate, exam, s.hub); err != nil {
		return nil, nil, err
	}
	s.exam = s.ctrl.Exam()
	s.remaining, _ = s.ctrl.Remaining()

	keys := a.readKeys(stop)
	done := ctx.Done()
	a.draw(s)

	for {
		select {
		case k, ok := <-keys:
			if !ok {
				// The terminal went away.
				keys = nil
				a.abandon(s)
				continue
			}
			a.handleKey(s, k)
		case sig := <-a.signals:
			a.emit(s, sig)
		case <-done:
			done = nil
			a.abandon(s)
		case ev := <-events:
			switch ev.Type {
			case proctor.EventTick:
				s.remaining = ev.Remaining
			case proctor.EventTerminated:
				s.ended = true
				s.status = fmt.Sprintf("Exam ended: %s. Submitting...", ev.Reason.Label())
			case proctor.EventSubmitted:
				return s.exam, ev.Result, nil
			case proctor.EventFailed:
				s.status = fmt.Sprintf("Submission failed: %v", ev.Err)
				a.draw(s)
				return s.exam, nil, ev.Err
			}
		}
		a.draw(s)
	}
}

func (a *App) emit(s *session, sig proctor.Signal) {
	if s.ended {
		return
	}
	a.log.Warn().Str("signal", string(sig)).Msg("Environment signal observed")

	// Keys read after this one must not overtake the signal.
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()
	if _, err := s.hub.Deliver(ctx, sig); err != nil {
		a.log.Warn().Err(err).Str("signal", string(sig)).Msg("Signal not acknowledged in time")
	}
}

// abandon ends the session when no more input can follow, so there is
// nothing for the signal to be ordered against.
func (a *App) abandon(s *session) {
	if s.ended {
		return
	}
	a.log.Warn().Msg("Candidate left the terminal")
	s.hub.Emit(proctor.SignalUnloadAttempted)
}

func (a *App) handleKey(s *session, k Key) {
	if s.ended {
		return
	}
	if k.Kind != KeySubmit {
		s.confirming = false
		s.status = ""
	}

	var options []string
	if len(s.exam.Questions) > 0 {
		options = s.exam.Questions[s.cursor].Options
	}
	switch k.Kind {
	case KeyNext:
		a.move(s, s.cursor+1)
	case KeyPrev:
		a.move(s, s.cursor-1)
	case KeyUp:
		if s.highlight > 0 {
			s.highlight--
		}
	case KeyDown:
		if s.highlight < len(options)-1 {
			s.highlight++
		}
	case KeySelect:
		if s.highlight < len(options) {
			a.answer(s, options[s.highlight])
		}
	case KeyDigit:
		if i := k.Digit - 1; i < len(options) {
			s.highlight = i
			a.answer(s, options[i])
		}
	case KeyClear:
		if len(options) > 0 {
			a.answer(s, "")
		}
	case KeySubmit:
		if s.confirming {
			s.ctrl.RequestTermination(model.ReasonNormalSubmission)
			return
		}
		s.confirming = true
		s.status = "Press s again to submit. Any other key returns to the exam."
	case KeyFocusLost:
		a.emit(s, proctor.SignalFocusLost)
	case KeyInterrupt:
		a.emit(s, proctor.SignalUnloadAttempted)
	case KeySuspend:
		a.emit(s, proctor.SignalVisibilityHidden)
	}
}

func (a *App) move(s *session, to int) {
	if to < 0 || to >= len(s.exam.Questions) {
		return
	}
	s.cursor = to
	s.highlight = 0
	current := s.ctrl.Snapshot().Responses[to]
	for i, opt := range s.exam.Questions[to].Options {
		if opt == current {
			s.highlight = i
		}
	}
}

func (a *App) answer(s *session, value string) {
	if err := s.ctrl.RecordAnswer(s.cursor, value); err != nil {
		s.status = err.Error()
	}
}

func (a *App) draw(s *session) {
	_, timed := s.ctrl.Remaining()
	screen := Render(View{
		Exam:      s.exam,
		Candidate: s.candidate,
		Responses: s.ctrl.Snapshot().Responses,
		Cursor:    s.cursor,
		Highlight: s.highlight,
		Remaining: s.remaining,
		Timed:     timed,
		Status:    s.status,
		Ended:     s.ended,
		Width:     a.width,
	})
	if _, err := io.WriteString(a.out, screen); err != nil {
		a.log.Debug().Err(err).Msg("Screen write failed")
	}
}

// readKeys decodes input on its own goroutine. The channel is closed when
// the input ends.
func (a *App) readKeys(stop <-chan struct{}) <-chan Key {
	keys := make(chan Key)
	go func() {
		defer close(keys)
		var dec Decoder
		buf := make([]byte, readBuffer)
		for {
			n, err := a.in.Read(buf)
			for _, k := range dec.Feed(buf[:n]) {
				select {
				case keys <- k:
				case <-stop:
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					a.log.Debug().Err(err).Msg("Input closed")
				}
				return
			}
		}
	}()
	return keys
}
