package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/client"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/terminal"
)

const logFile = "proctor-cli.log"

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// The screen belongs to the exam, so logs go to a file.
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	log := logger.SetupWriter(f, cfg.LogLevel, cfg.LogFormat)

	// ─── Candidate Input ───────────────────────────────────────────────
	fmt.Println("=== Exstem Proctored Exam ===")
	fmt.Printf("Server: %s\n", cfg.ProctorServerURL)
	fmt.Println("Leaving the terminal, suspending or quitting ends the exam immediately.")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter your name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		os.Exit(1)
	}

	// ─── Run Session ───────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := client.New(cfg.ProctorServerURL, client.WithLogger(log))
	screen, err := terminal.OpenScreen(os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: prepare terminal: %v\n", err)
		os.Exit(1)
	}

	app := terminal.NewApp(api, api, os.Stdin, os.Stdout, log,
		terminal.WithSignals(terminal.ProcessSignals(ctx)),
		terminal.WithWidth(screen.Width()),
		terminal.WithTickInterval(cfg.TickInterval),
	)
	exam, result, runErr := app.Run(ctx, name)

	if err := screen.Restore(); err != nil {
		log.Error().Err(err).Msg("Failed to restore terminal")
	}

	switch {
	case errors.Is(runErr, model.ErrNoActiveExam):
		fmt.Println("No exam is open right now. Please ask your examiner.")
		os.Exit(1)
	case runErr != nil && client.IsUnavailable(runErr):
		fmt.Printf("Your exam ended but could not be submitted: %v\n", runErr)
		fmt.Println("Please contact your examiner.")
		os.Exit(2)
	case runErr != nil:
		fmt.Printf("Error: %v\n", runErr)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Print(terminal.Summary(exam, result))
}
