package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driverhub/driverhub/internal/config"
	"github.com/driverhub/driverhub/internal/protocol"
	"github.com/driverhub/driverhub/internal/relay"
	"github.com/driverhub/driverhub/internal/server"
)

var (
	configFile string
	debugMode  bool
)

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

var rootCmd = &cobra.Command{
	Use:   "driverhub [flags]",
	Short: "driverhub - a dual-dialect WebDriver protocol gateway",
	Long: `driverhub terminates both the legacy JSON Wire Protocol and the W3C
WebDriver protocol on one port, negotiates capabilities, manages session
lifecycle with an inactivity watchdog, and relays commands to a configured
downstream automation server, translating between dialects on the way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file to override defaults")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Enable debug logging and route listing")
}

func initLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load() // no error if .env doesn't exist
	initLogger()
	slog := log.With().Str("state", "init").Logger()

	if configFile != "" {
		slog.Info().Str("config_file", configFile).Msg("loading config file")
		if err := config.LoadConfig(configFile); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
	} else {
		if err := config.SetConfig(config.Default()); err != nil {
			return fmt.Errorf("applying default config: %w", err)
		}
	}
	cfg := config.Config()
	if cfg.Downstream.URL == "" {
		return fmt.Errorf("downstream.url must be configured; driverhub relays commands to a downstream server")
	}

	drv, err := relay.New(cfg.Downstream.URL, protocol.Dialect(cfg.Downstream.Dialect))
	if err != nil {
		return fmt.Errorf("configuring downstream relay: %w", err)
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	defer probeCancel()
	if err := drv.WaitReady(probeCtx, 5); err != nil {
		slog.Warn().Err(err).Msg("downstream not answering /status, continuing anyway")
	}

	serverErrors, shutdownServer, err := createServer(ctx, drv)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownServer()
	}

	slog.Info().Msg("server stopped")
	return nil
}

func createServer(ctx context.Context, drv *relay.Driver) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()

	s, err := server.New(drv)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.Config()
	addr := cfg.ServerHostName + ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		okLabel.Printf("driverhub %s listening on http://%s%s\n", server.Version, addr, cfg.BasePath)
		slog.Info().Str("addr", addr).Str("base_path", cfg.BasePath).Msg("server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdownFn := func() {
		// Give outstanding requests 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		s.Sessions().Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdownFn, nil
}
