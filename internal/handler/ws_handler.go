package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients such as the terminal client.
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a proctored session over WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=
// Carries answers, environment signals and the submission from the client,
// and ticks, the termination and the graded result back to it. Closing the
// socket while the session is active counts as an unload attempt.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID := claims.SessionID

	events, unwatch, err := h.sessionService.Watch(sessionID)
	if err != nil {
		fail(c, err)
		return
	}
	defer unwatch()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", sessionID).Logger()
	wsLog.Info().Msg("Candidate connected")

	if view, err := h.sessionService.Get(sessionID); err == nil {
		h.sendState(conn, view)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.forward(conn, wsLog, events, stop)
	}()

	h.readLoop(c.Request.Context(), conn, wsLog, sessionID)

	close(stop)
	wg.Wait()
}

// sendState tells a (re)connecting client where the session stands.
func (h *WSHandler) sendState(conn *ws.Conn, view *model.SessionView) {
	switch {
	case view.Result != nil:
		_ = conn.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Result: view.Result})
	case view.Session.TerminationReason != model.ReasonNone:
		_ = conn.WriteTyped(terminated(view.Session.TerminationReason))
	case view.RemainingSeconds != nil:
		_ = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: *view.RemainingSeconds})
	}
}

// forward relays session events until the session reached its outcome or
// the connection is gone. The final event closes the socket.
func (h *WSHandler) forward(conn *ws.Conn, log zerolog.Logger, events <-chan proctor.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev := <-events:
			var msg interface{}
			final := false
			switch ev.Type {
			case proctor.EventTick:
				msg = ws.TickResponse{Event: ws.EventTick, RemainingSeconds: ev.Remaining}
			case proctor.EventTerminated:
				msg = terminated(ev.Reason)
			case proctor.EventSubmitted:
				msg = ws.GradedResponse{Event: ws.EventGraded, Result: ev.Result.ForCandidate()}
				final = true
			case proctor.EventFailed:
				msg = ws.ErrorResponse{
					Event: ws.EventError,
					Code:  string(response.ErrSubmissionFailed),
					Error: ev.Err.Error(),
				}
				final = true
			default:
				continue
			}

			if err := conn.WriteTyped(msg); err != nil {
				log.Debug().Err(err).Msg("Dropping session event, write failed")
				return
			}
			if final {
				_ = conn.CloseWith(websocket.CloseNormalClosure, "session ended")
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *ws.Conn, log zerolog.Logger, sessionID string) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			h.onDisconnect(log, sessionID)
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, sessionID, data)
		case ws.ActionSignal:
			h.handleSignal(ctx, conn, sessionID, data)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, log, sessionID)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, sessionID string, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed answer")
		return
	}
	if fields := validator.Struct(&req); fields != nil {
		_ = conn.WriteError(string(response.ErrValidation), firstField(fields))
		return
	}

	if err := h.sessionService.RecordAnswer(sessionID, *req.Index, req.Value); err != nil {
		_, code := errorStatus(err)
		_ = conn.WriteError(string(code), err.Error())
		return
	}
	_ = conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Index: *req.Index})
}

func (h *WSHandler) handleSignal(ctx context.Context, conn *ws.Conn, sessionID string, data []byte) {
	var req ws.SignalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed signal")
		return
	}
	if fields := validator.Struct(&req); fields != nil {
		_ = conn.WriteError(string(response.ErrInvalidSignal), firstField(fields))
		return
	}

	sig := proctor.Signal(req.Signal)
	accepted, err := h.sessionService.Signal(ctx, sessionID, sig)
	if err != nil {
		_, code := errorStatus(err)
		_ = conn.WriteError(string(code), err.Error())
		return
	}
	_ = conn.WriteTyped(ws.SignalResponse{
		Event:          ws.EventSignal,
		Accepted:       accepted,
		PreventDefault: sig == proctor.SignalUnloadAttempted,
	})
}

// handleSubmit requests the normal submission. The outcome reaches the
// client through the event stream, like any other termination.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, log zerolog.Logger, sessionID string) {
	if _, err := h.sessionService.Submit(ctx, sessionID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrSessionNotFound) {
			log.Debug().Err(err).Msg("Submit abandoned")
			return
		}
		log.Warn().Err(err).Msg("Submission failed")
	}
}

// onDisconnect treats leaving an active session like leaving the page.
func (h *WSHandler) onDisconnect(log zerolog.Logger, sessionID string) {
	view, err := h.sessionService.Get(sessionID)
	if err != nil || view.Session.State != model.SessionStateActive {
		return
	}
	if accepted, err := h.sessionService.Signal(context.Background(), sessionID, proctor.SignalUnloadAttempted); err == nil && accepted {
		log.Info().Msg("Connection dropped during active session, treated as unload attempt")
	}
}

func terminated(reason model.TerminationReason) ws.TerminatedResponse {
	return ws.TerminatedResponse{Event: ws.EventTerminated, Reason: reason, Label: reason.Label()}
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return "invalid message"
}
