package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/jwebster45206/story-relay/internal/logger"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
)

type ConsoleConfig struct {
	APIBaseURL string
	ScenarioID string // skip the selection modal when set
	Raw        bool   // ask the relay for raw text instead of event-stream framing
	LogOutput  string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &ConsoleConfig{}

	flagSet := pflag.NewFlagSet("story-console", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.APIBaseURL, "api", getEnv("API_BASE_URL", "http://localhost:8080"), "relay base URL")
	flagSet.StringVar(&cfg.ScenarioID, "scenario", "", "scenario id to start with (skips the selection menu)")
	flagSet.BoolVar(&cfg.Raw, "raw", false, "request raw text streaming instead of event-stream framing")
	flagSet.StringVar(&cfg.LogOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	log, closeLog, err := openLog(cfg.LogOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	client := relayclient.New(cfg.APIBaseURL, relayclient.WithEventStream(!cfg.Raw))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("could not reach the relay at %s (is cmd/api running?): %w", cfg.APIBaseURL, err)
	}

	log.Info("Console starting", "api", cfg.APIBaseURL, "raw", cfg.Raw, "scenario", cfg.ScenarioID)

	p := tea.NewProgram(NewConsoleUI(cfg, client, log),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// openLog returns a JSON logger writing to path, or a discarding logger
// when path is empty. The terminal belongs to the UI.
func openLog(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return logger.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file: %w", err)
	}
	log := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return log, func() { _ = f.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `story-console: terminal client for the story relay.

Usage:
  story-console [flags]

Flags:
%s
Environment:
  API_BASE_URL  default for --api
`, flagSet.FlagUsages())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
