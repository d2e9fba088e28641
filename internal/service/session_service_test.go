package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

func waitDone(t *testing.T, st *testStack, id string) {
	t.Helper()
	done, err := st.sessions.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionService_StartWithoutExam(t *testing.T) {
	st := newTestStack(t)
	_, err := st.sessions.Start(context.Background(), "Ada")
	assert.ErrorIs(t, err, model.ErrNoActiveExam)
	assert.Empty(t, st.sessions.List())
}

func TestSessionService_Lifecycle(t *testing.T) {
	st := newTestStack(t)
	examID := st.configure(t, geographyRequest(0))

	feed, cancel := st.monitor.Subscribe(context.Background())
	defer cancel()

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateActive, started.Session.State)
	assert.Equal(t, examID, started.Session.ExamID)
	assert.Equal(t, examID, started.Exam.ID)
	assert.Len(t, started.Session.Responses, 3)

	claims, err := st.tokens.ValidateToken(started.Token)
	require.NoError(t, err)
	assert.Equal(t, started.Session.ID, claims.SessionID)
	assert.Equal(t, examID, claims.ExamID)

	id := started.Session.ID
	require.NoError(t, st.sessions.RecordAnswer(id, 0, "Paris"))
	require.NoError(t, st.sessions.RecordAnswer(id, 1, "Rome"))
	assert.ErrorIs(t, st.sessions.RecordAnswer(id, 3, "Madrid"), model.ErrInvalidIndex)

	v, err := st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateSubmitted, v.Session.State)
	assert.Equal(t, model.ReasonNormalSubmission, v.Session.TerminationReason)
	require.NotNil(t, v.Result)
	assert.Equal(t, 2, v.Result.Score)
	assert.Nil(t, v.RemainingSeconds)

	again, err := st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, v.Result, again.Result)
	assert.Len(t, st.dispatcher.received(), 1)

	assert.ErrorIs(t, st.sessions.RecordAnswer(id, 2, "Madrid"), ErrSessionNotActive)

	events := decodeEvents(t, feed, 3)
	assert.Equal(t, model.MonitorSessionStarted, events[0].Type)
	assert.Equal(t, model.MonitorSessionTerminated, events[1].Type)
	assert.Equal(t, model.MonitorSessionSubmitted, events[2].Type)
	for _, ev := range events {
		assert.Equal(t, id, ev.SessionID)
		assert.Equal(t, "Ada", ev.CandidateName)
	}
	require.NotNil(t, events[2].Score)
	assert.Equal(t, 2, *events[2].Score)
	assert.False(t, events[2].IntegrityViolation)
}

func TestSessionService_SignalTerminates(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	id := started.Session.ID
	require.NoError(t, st.sessions.RecordAnswer(id, 0, "Paris"))

	accepted, err := st.sessions.Signal(context.Background(), id, proctor.SignalFocusLost)
	require.NoError(t, err)
	assert.True(t, accepted)
	waitDone(t, st, id)

	v, err := st.sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateSubmitted, v.Session.State)
	assert.Equal(t, model.ReasonFocusLost, v.Session.TerminationReason)
	assert.Equal(t, 1, v.Result.Score)

	// The explicit submission loses and reports the signal's outcome.
	v, err = st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonFocusLost, v.Result.TerminationReason)

	accepted, err = st.sessions.Signal(context.Background(), id, proctor.SignalVisibilityHidden)
	require.NoError(t, err)
	assert.False(t, accepted)

	stats := st.sessions.Stats()
	assert.Equal(t, model.MonitorStats{TotalJoined: 1, TotalSubmitted: 1, TotalViolations: 1}, stats)
}

func TestSessionService_SignalThenSubmit(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	id := started.Session.ID

	accepted, err := st.sessions.Signal(context.Background(), id, proctor.SignalVisibilityHidden)
	require.NoError(t, err)
	assert.True(t, accepted)

	v, err := st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTabSwitch, v.Session.TerminationReason)
	require.NotNil(t, v.Result)
	assert.Equal(t, model.ReasonTabSwitch, v.Result.TerminationReason)
	assert.Len(t, st.dispatcher.received(), 1)
}

type failingIssuer struct{}

func (failingIssuer) GenerateSessionToken(string, string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing key unavailable")
}

func TestSessionService_StartTokenFailure(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))
	st.sessions.tokens = failingIssuer{}

	feed, cancel := st.monitor.Subscribe(context.Background())
	defer cancel()

	_, err := st.sessions.Start(context.Background(), "Ada")
	require.Error(t, err)

	// Nothing was graded, reported or announced for the dropped session.
	assert.Empty(t, st.sessions.List())
	assert.Equal(t, model.MonitorStats{}, st.sessions.Stats())
	assert.Empty(t, st.dispatcher.received())
	select {
	case payload := <-feed:
		t.Fatalf("unexpected monitor event %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionService_Summaries(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	require.NoError(t, st.sessions.RecordAnswer(started.Session.ID, 2, "Madrid"))

	summaries := st.sessions.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, started.Session.ID, summaries[0].ID)
	assert.Equal(t, "Ada", summaries[0].CandidateName)
	assert.Equal(t, 1, summaries[0].Answered)
	assert.Equal(t, 3, summaries[0].TotalQuestions)
	assert.Equal(t, model.SessionStateActive, summaries[0].State)
}

func TestSessionService_TimeExpiry(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(1))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	waitDone(t, st, started.Session.ID)

	v, err := st.sessions.Get(started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTimeExpired, v.Session.TerminationReason)
	assert.Equal(t, 0, v.Result.Score)
}

func TestSessionService_Watch(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	id := started.Session.ID

	events, cancel, err := st.sessions.Watch(id)
	require.NoError(t, err)
	defer cancel()

	_, err = st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)

	var types []proctor.EventType
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v", types)
		}
	}
	assert.Equal(t, []proctor.EventType{proctor.EventTerminated, proctor.EventSubmitted}, types)
	cancel()
	cancel()
}

func TestSessionService_Errors(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	_, err := st.sessions.Get("missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.ErrorIs(t, st.sessions.RecordAnswer("missing", 0, "x"), model.ErrSessionNotFound)
	_, err = st.sessions.Submit(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, _, err = st.sessions.Watch("missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	_, err = st.sessions.Signal(context.Background(), started.Session.ID, proctor.Signal("mouse-moved"))
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestSessionService_StartedSessionSurvivesExamReplacement(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	started, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	id := started.Session.ID
	for i, v := range []string{"Paris", "Rome", "Madrid"} {
		require.NoError(t, st.sessions.RecordAnswer(id, i, v))
	}

	replacement := geographyRequest(0)
	replacement.Questions = replacement.Questions[:1]
	replacement.SolutionKey = []string{"Berlin"}
	st.configure(t, replacement)

	v, err := st.sessions.Submit(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Result.Score)
}

func TestSessionService_ListStatsAndSweep(t *testing.T) {
	st := newTestStack(t)
	st.configure(t, geographyRequest(0))

	first, err := st.sessions.Start(context.Background(), "Ada")
	require.NoError(t, err)
	second, err := st.sessions.Start(context.Background(), "Grace")
	require.NoError(t, err)

	_, err = st.sessions.Submit(waitCtx(t), first.Session.ID)
	require.NoError(t, err)

	list := st.sessions.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.Session.ID, list[0].ID)

	assert.Equal(t, model.MonitorStats{TotalJoined: 2, TotalActive: 1, TotalSubmitted: 1}, st.sessions.Stats())

	assert.Zero(t, st.sessions.sweep(time.Now()), "finished sessions are retained")
	assert.Equal(t, 1, st.sessions.sweep(time.Now().Add(2*time.Minute)))

	_, err = st.sessions.Get(first.Session.ID)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = st.sessions.Get(second.Session.ID)
	assert.NoError(t, err)
}

func TestSessionService_RunJanitorStops(t *testing.T) {
	st := newTestStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.sessions.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
