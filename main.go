package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"gpuconsole/api"
	"gpuconsole/failover"
	"gpuconsole/reserve"
	"gpuconsole/toast"
	"gpuconsole/tui"
)

// Config is read from the environment (and .env).
type Config struct {
	APIBaseURL   string        `envconfig:"API_BASE_URL"`
	APIKey       string        `envconfig:"API_KEY"`
	InstanceID   string        `envconfig:"GPU_INSTANCE_ID"`
	LogLevel     string        `envconfig:"optional,LOG_LEVEL"`
	LogFile      string        `envconfig:"optional,LOG_FILE"`
	PollInterval time.Duration `envconfig:"optional,POLL_INTERVAL"`
}

func loggerLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

func main() {
	// Load .env (ignore error if missing).
	_ = godotenv.Load()

	cfg := Config{}
	if err := envconfig.Init(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "gpuconsole.log"
	}

	// Log to file since bubbletea owns the terminal.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err == nil {
		log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
		defer logFile.Close()
	}
	log.Logger = log.Level(loggerLevelFromString(cfg.LogLevel))

	client := api.NewClient(cfg.APIBaseURL, cfg.APIKey)

	stats := api.NewPollStats(5 * time.Minute)
	watcher := failover.NewWatcher(client, cfg.InstanceID, cfg.PollInterval)
	watcher.Stats = stats

	negotiator := reserve.NewNegotiator(client, reserve.DefaultDebounce)
	defer negotiator.Close()

	toasts := toast.NewQueue()
	defer toasts.Close()

	// Seed the form with a sane window: next full hour, default length.
	negotiator.SetGPUCount(1)
	negotiator.SetStart(time.Now().Truncate(time.Hour).Add(time.Hour))

	// Context for background goroutines.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	// Pass a start function that kicks off the watcher once Init() runs,
	// ensuring the TUI is ready to receive events.
	startWatcher := func() {
		go watcher.Start(ctx)
	}
	model := tui.NewModel(ctx, client, watcher, negotiator, toasts, stats, cfg.InstanceID, startWatcher)
	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-sigCh
		cancel()
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}
	cancel()
}
