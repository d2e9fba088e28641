package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// MonitorService publishes session lifecycle events to the examiner's live feed.
type MonitorService struct {
	feed repository.MonitorFeed
	log  zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(feed repository.MonitorFeed, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		feed: feed,
		log:  log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to every attached examiner. The feed is best effort, so
// failures are only logged.
func (s *MonitorService) Publish(ctx context.Context, ev model.MonitorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal monitor event")
		return
	}
	if err := s.feed.Publish(ctx, payload); err != nil {
		s.log.Warn().
			Err(err).
			Str("session_id", ev.SessionID).
			Str("type", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to the feed. Payloads are JSON-encoded MonitorEvents.
func (s *MonitorService) Subscribe(ctx context.Context) (<-chan []byte, func()) {
	return s.feed.Subscribe(ctx)
}
