package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/config"
	"github.com/xonecas/parley/internal/constants"
	"github.com/xonecas/parley/internal/core"
	"github.com/xonecas/parley/internal/tui"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "config.toml", "Path to config file")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		serverURL   = flag.String("server", "", "Chat server URL (overrides config)")
		token       = flag.String("token", "", "Bearer token (overrides config and stored credentials)")
		chatID      = flag.String("chat", "", "Open this conversation on start")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Parley %s\n", Version)
		os.Exit(0)
	}

	if err := initLogging(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	log.Info().Str("version", Version).Msg("Starting Parley")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}

	bearer := resolveToken(*token, cfg.Client.Token)
	client := api.NewClient(cfg.Client.ServerURL,
		api.WithToken(bearer),
		api.WithTimeout(cfg.Client.RequestTimeout.Duration),
		api.WithSendRate(cfg.Client.SendRateLimit, cfg.Client.SendRateBurst),
	)
	log.Debug().Str("server", client.BaseURL()).Bool("token", bearer != "").Msg("Client configured")

	bus := core.NewEventBus(constants.MinEventBusBufferSize * 16)
	defer bus.Close()

	engine := core.NewEngine(client, bus)
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eventCh := bus.Subscribe()
	model := tui.New(ctx, engine, client, eventCh).OpenOnStart(*chatID)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal")
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		log.Fatal().Err(err).Msg("TUI error")
	}

	log.Info().Msg("Parley shutdown complete")
}

// resolveToken picks the flag, then the config file, then stored credentials.
func resolveToken(flagToken, configToken string) string {
	if flagToken != "" {
		return flagToken
	}
	if configToken != "" {
		return configToken
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load credentials")
		return ""
	}
	return creds.Token
}

func initLogging(debug bool) error {
	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	logPath := filepath.Join(dataDir, "parley.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// The TUI owns stdout and stderr.
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	return nil
}
