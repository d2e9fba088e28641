package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// retry runs ping until it succeeds, the attempts run out or ctx is done.
// The wait doubles after every failure.
func retry(ctx context.Context, log zerolog.Logger, name string, ping func(context.Context) error) error {
	wait := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn().
			Err(err).
			Str("backend", name).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Backend not reachable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
