package terminal

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	clearScreen  = "\x1b[H\x1b[2J"
	defaultWidth = 80
	minWidth     = 20
)

// View is everything the exam screen shows.
type View struct {
	Exam      *model.ExamDefinition
	Candidate string
	Responses []string
	Cursor    int
	Highlight int
	Remaining int
	Timed     bool
	Status    string
	Ended     bool
	Width     int
}

// Render draws the full screen. Raw mode disables output post-processing,
// so lines end in CRLF.
func Render(v View) string {
	width := v.Width
	if width <= 0 {
		width = defaultWidth
	}
	if width < minWidth {
		width = minWidth
	}

	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	b.WriteString(clearScreen)
	header := v.Exam.Title
	if v.Timed {
		header = fmt.Sprintf("%s  [%s left]", header, formatRemaining(v.Remaining))
	}
	line(header)
	line(fmt.Sprintf("Candidate: %s  Answered: %d/%d", v.Candidate, answered(v.Responses), len(v.Exam.Questions)))
	line(strings.Repeat("-", width))

	if len(v.Exam.Questions) > 0 && !v.Ended {
		q := v.Exam.Questions[v.Cursor]
		line(fmt.Sprintf("Question %d/%d", v.Cursor+1, len(v.Exam.Questions)))
		for _, l := range wrap(q.Text, width) {
			line(l)
		}
		line("")

		current := ""
		if v.Cursor < len(v.Responses) {
			current = v.Responses[v.Cursor]
		}
		for i, opt := range q.Options {
			pointer := " "
			if i == v.Highlight {
				pointer = ">"
			}
			mark := "( )"
			if opt == current {
				mark = "(*)"
			}
			line(fmt.Sprintf("%s %s %d. %s", pointer, mark, i+1, opt))
		}
		line("")
		line("1-9/enter answer  c clear  n/p next/prev  s submit")
	}

	if v.Status != "" {
		line("")
		for _, l := range wrap(v.Status, width) {
			line(l)
		}
	}
	return b.String()
}

// Summary is printed once the exam screen has been left.
func Summary(exam *model.ExamDefinition, result *model.GradedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", exam.Title)
	fmt.Fprintf(&b, "Score: %d/%d (%.2f%%)\n", result.Score, result.TotalQuestions, result.Percentage)
	fmt.Fprintf(&b, "Ended by: %s\n", result.TerminationReason.Label())
	if result.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Time taken: %s\n", formatRemaining(int(result.DurationSeconds)))
	}
	for i, ev := range result.Evaluation {
		status := "wrong"
		if ev.IsCorrect {
			status = "correct"
		}
		fmt.Fprintf(&b, "%2d. %s: %s (%s)\n", i+1, ev.Question, ev.CandidateAnswer, status)
	}
	return b.String()
}

func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func answered(responses []string) int {
	n := 0
	for _, r := range responses {
		if r != "" {
			n++
		}
	}
	return n
}

// wrap breaks text into lines of at most width runes at word boundaries.
// Words longer than width are split.
func wrap(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur []rune
		for _, word := range strings.Fields(para) {
			w := []rune(word)
			for len(w) > width {
				if len(cur) > 0 {
					lines = append(lines, string(cur))
					cur = nil
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			switch {
			case len(cur) == 0:
				cur = w
			case len(cur)+1+len(w) <= width:
				cur = append(append(cur, ' '), w...)
			default:
				lines = append(lines, string(cur))
				cur = w
			}
		}
		lines = append(lines, string(cur))
	}
	return lines
}
