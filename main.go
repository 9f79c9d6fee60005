package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/litechat/backend"
	"github.com/gosuda/litechat/channel"
	"github.com/gosuda/litechat/store"
	"github.com/gosuda/litechat/tui"
)

const (
	defaultBackendURL = "http://localhost:4000"
	backendEnvVar     = "LITECHAT_BACKEND_URL"
)

var rootCmd = &cobra.Command{
	Use:   "litechat",
	Short: "Terminal client for a WhatsApp-Lite style chat service",
	RunE:  runChat,
}

var (
	flagBackendURL  string
	flagMediaURL    string
	flagMediaPreset string
	flagMediaFolder string
	flagDataPath    string
	flagLogFile     string
	flagDebug       bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagBackendURL, "backend-url", "", "chat backend base URL (overrides $"+backendEnvVar+")")
	flags.StringVar(&flagMediaURL, "media-url", "", "hosted media upload endpoint; empty uses the backend /upload route")
	flags.StringVar(&flagMediaPreset, "media-preset", "", "unsigned upload preset for the hosted media service")
	flags.StringVar(&flagMediaFolder, "media-folder", "litechat", "folder on the hosted media service")
	flags.StringVar(&flagDataPath, "data-path", "", "optional directory to cache chat history via PebbleDB")
	flags.StringVar(&flagLogFile, "log-file", "", "diagnostic log file (the TUI owns the terminal)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat command")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	closeLog := setupLogging()
	defer closeLog()

	// Cancellation context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := backend.ResolveBase(flagBackendURL, os.Getenv(backendEnvVar), defaultBackendURL)
	client := backend.New(base)
	log.Info().Str("base", base).Msg("[litechat] backend resolved")

	// One-time route discovery; a failure keeps the default path and the
	// history backoff takes it from there.
	detectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.DetectMessagesPath(detectCtx); err != nil {
		log.Warn().Err(err).Msg("[litechat] messages path detection failed")
	}
	cancel()

	ch := channel.New(channel.Config{URL: client.WebsocketURL()})
	ch.Start(ctx)

	var cache *store.Cache
	if flagDataPath != "" {
		c, err := store.Open(flagDataPath)
		if err != nil {
			log.Warn().Err(err).Msg("[litechat] open cache failed; running in memory only")
		} else {
			cache = c
		}
	}

	media := backend.NewMediaService(flagMediaURL, flagMediaPreset, flagMediaFolder)

	app := tui.New(tui.Deps{Backend: client, Media: media, Channel: ch, Cache: cache})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	if err := ch.Close(); err != nil {
		log.Warn().Err(err).Msg("[litechat] channel close error")
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("[litechat] cache close error")
		}
	}
	log.Info().Msg("[litechat] shutdown complete")

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", runErr)
	}
	return nil
}

// setupLogging routes zerolog away from the terminal the TUI draws on.
func setupLogging() func() {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	path := flagLogFile
	if path == "" && flagDebug {
		path = "litechat.log"
	}
	if path == "" {
		log.Logger = log.Output(io.Discard)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Logger = log.Output(io.Discard)
		return func() {}
	}
	log.Logger = log.Output(f)
	return func() { _ = f.Close() }
}
