package terminal

import (
	"context"
	"os"
	"os/signal"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ProcessSignals translates process signals into environment signals until
// ctx is done. A hang-up or termination is an unload attempt, a job-control
// stop counts as hiding the exam.
func ProcessSignals(ctx context.Context) <-chan proctor.Signal {
	raw := make(chan os.Signal, 4)
	signal.Notify(raw, watchedSignals...)

	out := make(chan proctor.Signal, 4)
	go func() {
		defer signal.Stop(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-raw:
				if s, ok := environmentSignal(sig); ok {
					select {
					case out <- s:
					default:
					}
				}
			}
		}
	}()
	return out
}
