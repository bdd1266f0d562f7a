// Package main provides the host player entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/rockola/internal/api/control"
	"github.com/osa030/rockola/internal/app/fallback"
	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/app/player/mpv"
	"github.com/osa030/rockola/internal/app/player/screen"
	"github.com/osa030/rockola/internal/app/poller"
	"github.com/osa030/rockola/internal/infra/config"
	"github.com/osa030/rockola/internal/infra/discovery"
	"github.com/osa030/rockola/internal/infra/jukebox"
	"github.com/osa030/rockola/internal/infra/logger"
)

var version = "dev"

var (
	app        = kingpin.New("rockola-host", "rockola host player")
	configPath = app.Flag("config", "Path to config file").Default("config/host.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the host (default)").Default()
	app.Version(version)
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Host error: %v", err)
		os.Exit(1)
	}
}

// run wires the host and blocks until a shutdown signal or a server error.
func run(cfg *config.Config) error {
	client, err := jukebox.New(jukebox.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create jukebox client")
	}

	mux := http.NewServeMux()

	backend, screenBackend, closeBackend := newBackend(cfg, mux)
	defer closeBackend()
	zlog.Info().Msgf("Player backend: %s", backend.Name())

	loader := player.NewLoader(backend, player.LoaderConfig{
		AcquireTimeout: cfg.AcquireTimeout(),
		CreateTimeout:  cfg.CreateTimeout(),
	})

	controller := playback.NewController(client, loader, fallback.NewChainFromConfig(cfg), playback.Config{
		Volume:            cfg.PlayerVolume(),
		FallbackSkipLimit: cfg.FallbackSkipLimit(),
	})

	queuePoller := poller.New(client, cfg.PollInterval())
	queuePoller.Subscribe(func(st poller.State) {
		controller.ObserveQueue(st.Items)
	})

	notifier := notification.NewManager()

	controlServer := control.NewServer(control.Config{
		AdminToken: cfg.Admin.Token,
		PublicURL:  cfg.Server.PublicURL,
	}, controller, queuePoller, client, notifier)
	controlServer.Register(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hooks []func(playback.Event)
	if screenBackend != nil {
		hooks = append(hooks, func(ev playback.Event) {
			screenBackend.ShowStatus(overlayFor(ev.State))
		})
	}
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		notifier.Forward(ctx, controller.Events(), hooks...)
	}()

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting control server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	advertiser := discovery.NewAdvertiser()
	if cfg.Server.Advertise {
		if err := advertiser.Start(discovery.Config{
			Instance:  cfg.Server.Instance,
			Addr:      cfg.Server.Addr,
			PublicURL: cfg.Server.PublicURL,
			Version:   version,
		}); err != nil {
			zlog.Warn().Msgf("Failed to advertise control server: %v", err)
		}
	}

	queuePoller.Start(ctx)
	go func() {
		if err := controller.Start(ctx); err != nil {
			zlog.Error().Msgf("Failed to start playback: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Abort a start still waiting on the player
	cancel()

	advertiser.Stop()
	queuePoller.Stop()
	controller.Close()
	<-forwardDone
	notifier.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Host stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newBackend builds the configured player backend. The screen backend
// also registers its page and socket routes on mux.
func newBackend(cfg *config.Config, mux *http.ServeMux) (player.Backend, *screen.Backend, func()) {
	if cfg.Player.Backend == "mpv" {
		b := mpv.New(mpv.Config{
			Executable: cfg.Player.MPV.Executable,
			SocketPath: cfg.Player.MPV.SocketPath,
			Windowed:   cfg.Player.MPV.Windowed,
			ExtraArgs:  cfg.Player.MPV.ExtraArgs,
		})
		return b, nil, func() {
			if err := b.Close(); err != nil {
				zlog.Warn().Msgf("Failed to close mpv: %v", err)
			}
		}
	}

	b := screen.New()
	b.Register(mux)
	zlog.Info().Msgf("Host screen available at %s", screen.PagePath)
	return b, b, func() {}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	log := logger.With("hooks")
	log.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		log.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			log.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
