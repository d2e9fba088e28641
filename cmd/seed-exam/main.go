package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-proctor/internal/client"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// Usage:
//
//	seed-exam exam.json   configure the exam described in the file
//	seed-exam             build the exam interactively
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	var (
		req *model.ConfigureExamRequest
		err error
	)
	if len(os.Args) > 1 {
		req, err = loadFile(os.Args[1])
	} else {
		req, err = prompt(bufio.NewReader(os.Stdin))
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	validator.Setup()
	if fields := validator.Struct(req); fields != nil {
		fmt.Println("Error: the exam is not valid:")
		for field, msg := range fields {
			fmt.Printf("  %s: %s\n", field, msg)
		}
		os.Exit(1)
	}
	if len(req.SolutionKey) != len(req.Questions) {
		fmt.Printf("Error: %d questions but %d solution key entries\n", len(req.Questions), len(req.SolutionKey))
		os.Exit(1)
	}

	// ─── Configure Exam ────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api := client.New(cfg.ProctorServerURL, client.WithLogger(log))
	id, err := api.ConfigureExam(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Str("server", cfg.ProctorServerURL).Msg("Failed to configure exam")
	}

	fmt.Printf("✓ Exam %q configured on %s\n", req.Title, cfg.ProctorServerURL)
	fmt.Printf("  ID: %s\n", id)
	fmt.Printf("  Questions: %d\n", len(req.Questions))
	if req.TimeLimitMinutes > 0 {
		fmt.Printf("  Time limit: %d minutes\n", req.TimeLimitMinutes)
	}
}

func loadFile(path string) (*model.ConfigureExamRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var req model.ConfigureExamRequest
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &req, nil
}

func prompt(reader *bufio.Reader) (*model.ConfigureExamRequest, error) {
	ask := func(label string) string {
		fmt.Print(label)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}
	askInt := func(label string) (int, error) {
		s := ask(label)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", s)
		}
		return n, nil
	}

	fmt.Println("=== Configure Exam ===")
	req := &model.ConfigureExamRequest{}
	req.Title = ask("Title: ")
	req.Description = ask("Description (optional): ")
	req.ExaminerContact = ask("Examiner email (optional): ")

	var err error
	if req.TimeLimitMinutes, err = askInt("Time limit in minutes (0 = untimed): "); err != nil {
		return nil, err
	}
	count, err := askInt("Number of questions: ")
	if err != nil {
		return nil, err
	}

	for i := 0; i < count; i++ {
		fmt.Printf("\n--- Question %d ---\n", i+1)
		q := model.Question{
			ID:   fmt.Sprintf("q%d", i+1),
			Text: ask("Text: "),
		}
		for {
			opt := ask(fmt.Sprintf("Option %d (empty to finish): ", len(q.Options)+1))
			if opt == "" {
				break
			}
			q.Options = append(q.Options, opt)
		}
		correct, err := askInt("Number of the correct option: ")
		if err != nil {
			return nil, err
		}
		if correct < 1 || correct > len(q.Options) {
			return nil, fmt.Errorf("question %d: option %d does not exist", i+1, correct)
		}
		req.Questions = append(req.Questions, q)
		req.SolutionKey = append(req.SolutionKey, q.Options[correct-1])
	}
	return req, nil
}
