// Package report delivers graded results to the examiner.
//
// A dispatcher gets exactly one attempt per report. Callers log a failed
// delivery and move on; nothing here retries.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Dispatcher delivers a result report.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, r *model.ResultReport) error
}

// Multi fans a report out to several dispatchers. Every dispatcher is tried
// even when an earlier one fails; the failures are joined.
type Multi struct {
	dispatchers []Dispatcher
	log         zerolog.Logger
}

// NewMulti creates a fan-out dispatcher.
func NewMulti(log zerolog.Logger, dispatchers ...Dispatcher) *Multi {
	return &Multi{
		dispatchers: dispatchers,
		log:         log.With().Str("component", "report_dispatcher").Logger(),
	}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Dispatch(ctx context.Context, r *model.ResultReport) error {
	var errs []error
	for _, d := range m.dispatchers {
		if err := d.Dispatch(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		m.log.Debug().
			Str("dispatcher", d.Name()).
			Str("report_id", r.ReportID).
			Msg("Report dispatched")
	}
	return errors.Join(errs...)
}
