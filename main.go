package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/DouaaHasan/placesharer-cli/internal/api"
	"github.com/DouaaHasan/placesharer-cli/internal/config"
	"github.com/DouaaHasan/placesharer-cli/internal/drafts"
	"github.com/DouaaHasan/placesharer-cli/internal/session"
	"github.com/DouaaHasan/placesharer-cli/internal/ui"
)

const version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "-v", "--version":
			fmt.Printf("Placer v%s\n", version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	configPath := flag.String("config", config.DefaultPath(), "Path to the config file")
	openWith := flag.String("with", "", "Corresponder id to open a conversation with on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Create %s or set PLACER_SERVER and PLACER_TOKEN.\n", config.DefaultPath())
		os.Exit(1)
	}

	logger, closeLog, err := openLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	draftStore, err := drafts.Open(drafts.DefaultPath())
	if err != nil {
		logger.Warn().Err(err).Msg("drafts unavailable")
		draftStore = nil
	} else {
		defer draftStore.Close()
	}

	client := api.New(cfg.ServerURL, cfg.Token, logger)
	store := session.NewStore()
	var draftDeleter session.DraftStore
	if draftStore != nil {
		draftDeleter = draftStore
	}
	controller := session.NewController(client, store, draftDeleter, logger)

	initialModel := ui.NewMessagesModel(controller, draftStore, *openWith)
	p := tea.NewProgram(initialModel, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// openLogger writes logs to ~/.placer/placer.log; the terminal belongs
// to the TUI.
func openLogger(level string) (zerolog.Logger, func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	dir := config.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	logPath := filepath.Join(dir, "placer.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := zerolog.New(f).Level(lvl).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}

func printHelp() {
	help := `Placer - Terminal Messaging Client for placesharer

Usage:
  placer                    Start the messaging client
  placer --with <id>        Open a conversation with a corresponder on startup
  placer --config <path>    Use a different config file
  placer version            Show version information
  placer help               Show this help message

Contacts pane:
  ↑/↓ or j/k        Navigate the contact list
  Enter             Open the selected conversation
  d                 Delete the selected conversation
  /                 Search contacts
  r                 Refresh the contact list
  q                 Quit

Messages pane:
  ctrl+s            Send the composed message
  ctrl+r            Refresh the thread
  PgUp/PgDn         Scroll messages
  ESC               Back to the contact list
  ctrl+c            Quit

Configuration:
  ~/.placer/config.yml with server_url, token and optional log_level.
  PLACER_SERVER and PLACER_TOKEN environment variables override the file.
  The token is the bearer credential from logging in on the web app.

Notes:
  - Message drafts are kept per conversation in ~/.placer/drafts.db
  - Logs are written to ~/.placer/placer.log
`
	fmt.Print(help)
}
