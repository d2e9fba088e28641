package report

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var bodyFuncs = template.FuncMap{
	"label": func(r model.TerminationReason) string { return r.Label() },
	"inc":   func(i int) int { return i + 1 },
}

var bodyTemplate = template.Must(template.New("report").Funcs(bodyFuncs).Parse(`Exam Results for {{.CandidateName}}

Exam:     {{.ExamTitle}}
Score:    {{.Result.Score}} / {{.Result.TotalQuestions}} ({{printf "%.2f" .Result.Percentage}}%)
Status:   {{label .Result.TerminationReason}}
Duration: {{.Result.DurationSeconds}} seconds

Detailed Responses
{{range $i, $e := .Result.Evaluation}}
{{inc $i}}. {{$e.Question}}
   Candidate: {{$e.CandidateAnswer}}
   Correct:   {{$e.CorrectAnswer}}
   Result:    {{if $e.IsCorrect}}Correct{{else}}Incorrect{{end}}
{{end}}`))

// Subject returns the message subject for r.
func Subject(r *model.ResultReport) string {
	return fmt.Sprintf("Exam Result: %s - %s", r.CandidateName, r.ExamTitle)
}

// Render returns the plain-text message body for r.
func Render(r *model.ResultReport) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render report %s: %w", r.ReportID, err)
	}
	return buf.String(), nil
}
