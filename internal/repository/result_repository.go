package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ArchivedResult is one row of exam_results.
type ArchivedResult struct {
	ReportID          string                  `json:"report_id"`
	ExamID            string                  `json:"exam_id"`
	ExamTitle         string                  `json:"exam_title"`
	CandidateName     string                  `json:"candidate_name"`
	Score             int                     `json:"score"`
	TotalQuestions    int                     `json:"total_questions"`
	Percentage        float64                 `json:"percentage"`
	TerminationReason model.TerminationReason `json:"termination_reason"`
	DurationSeconds   int64                   `json:"duration_seconds"`
	StartedAt         time.Time               `json:"started_at"`
	EndedAt           time.Time               `json:"ended_at"`
	SubmittedAt       time.Time               `json:"submitted_at"`
}

var resultColumns = []string{
	"id", "exam_id", "exam_title", "candidate_name", "score", "total_questions",
	"percentage", "termination_reason", "duration_seconds", "evaluation",
	"started_at", "ended_at", "submitted_at",
}

// ResultRepository writes graded results to PostgreSQL.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func resultRow(r *model.ResultReport) ([]interface{}, error) {
	evaluation, err := json.Marshal(r.Result.Evaluation)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation: %w", err)
	}
	return []interface{}{
		r.ReportID, r.ExamID, r.ExamTitle, r.CandidateName, r.Result.Score,
		r.Result.TotalQuestions, r.Result.Percentage, string(r.Result.TerminationReason),
		r.Result.DurationSeconds, evaluation, r.StartedAt, r.EndedAt, r.SubmittedAt,
	}, nil
}

// CopyReports bulk inserts reports with COPY. The whole batch fails on any
// bad row, including a duplicate id.
func (r *ResultRepository) CopyReports(ctx context.Context, reports []*model.ResultReport) (int64, error) {
	rows := make([][]interface{}, 0, len(reports))
	for _, rep := range reports {
		row, err := resultRow(rep)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_results"},
		resultColumns,
		pgx.CopyFromRows(rows),
	)
}

// InsertReport inserts a single report. Re-inserting an archived report is a
// no-op, which makes requeued items safe.
func (r *ResultRepository) InsertReport(ctx context.Context, rep *model.ResultReport) error {
	row, err := resultRow(rep)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_results (id, exam_id, exam_title, candidate_name, score, total_questions,
		                           percentage, termination_reason, duration_seconds, evaluation,
		                           started_at, ended_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		row...)
	return err
}

// ListByExam returns the most recent results of an exam, newest first.
func (r *ResultRepository) ListByExam(ctx context.Context, examID string, limit int) ([]ArchivedResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, exam_title, candidate_name, score, total_questions, percentage,
		        termination_reason, duration_seconds, started_at, ended_at, submitted_at
		 FROM exam_results
		 WHERE exam_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2`, examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]ArchivedResult, 0)
	for rows.Next() {
		var a ArchivedResult
		if err := rows.Scan(&a.ReportID, &a.ExamID, &a.ExamTitle, &a.CandidateName, &a.Score,
			&a.TotalQuestions, &a.Percentage, &a.TerminationReason, &a.DurationSeconds,
			&a.StartedAt, &a.EndedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// IsDataError reports whether err was caused by the row itself rather than
// by the connection, in which case retrying will not help.
func IsDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// Class 22 is data exception, class 23 integrity constraint violation.
	return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "23")
}
