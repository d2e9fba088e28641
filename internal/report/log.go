package report

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// LogDispatcher writes the rendered report to the application log. With no
// recipient it still logs the full result so nothing is lost.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("component", "log_dispatcher").Logger()}
}

func (d *LogDispatcher) Name() string { return "log" }

func (d *LogDispatcher) Dispatch(_ context.Context, r *model.ResultReport) error {
	if r.Recipient == "" {
		d.log.Warn().
			Str("report_id", r.ReportID).
			Interface("result", r).
			Msg("Report not sent: no recipient configured")
		return nil
	}

	body, err := Render(r)
	if err != nil {
		return err
	}
	d.log.Info().
		Str("report_id", r.ReportID).
		Str("to", r.Recipient).
		Str("subject", Subject(r)).
		Str("body", body).
		Msg("Report rendered")
	return nil
}
