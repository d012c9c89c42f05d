package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bloxmod/modbridge/internal/auth"
	"github.com/bloxmod/modbridge/internal/commands"
	"github.com/bloxmod/modbridge/internal/config"
	"github.com/bloxmod/modbridge/internal/discord"
	"github.com/bloxmod/modbridge/internal/httpapi"
	"github.com/bloxmod/modbridge/internal/logger"
	"github.com/bloxmod/modbridge/internal/pending"
	"github.com/bloxmod/modbridge/internal/pool"
	"github.com/bloxmod/modbridge/internal/profile"
	"github.com/bloxmod/modbridge/internal/registry"
	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "modbridge",
		Short: "Discord moderation bridge for game-side ban enforcement",
	}

	root.AddCommand(
		runCmd(),
		healthcheckCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the moderation bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Msg("modbridge starting")

	store, err := storage.NewBboltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	reg, err := registry.New(store, log)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	policy, err := auth.New(cfg.OwnerID, store, log)
	if err != nil {
		return fmt.Errorf("load auth policy: %w", err)
	}

	profiles := profile.NewClient(profile.ClientConfig{
		BaseURL:      cfg.ProfileAPIURL,
		Timeout:      cfg.ProfileHTTPTimeout,
		Debug:        cfg.ProfileAPIDebug,
		RateWindow:   cfg.RateLimitWindow,
		RateMaxCalls: cfg.RateLimitMaxCalls,
	}, store, log)

	handler := commands.NewHandler(reg, pending.NewTracker(), policy, profiles, log)

	trackPool, err := pool.New(pool.Config{
		Workers:    cfg.PoolWorkers,
		QueueDepth: cfg.PoolQueueDepth,
		MaxRetries: cfg.PoolMaxRetries,
		RetryBase:  cfg.PoolRetryBase,
	}, httpapi.NewTrackHandler(store, log), log)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	surface, err := discord.New(cfg.DiscordToken, cfg.GuildID, handler, log)
	if err != nil {
		return fmt.Errorf("build discord surface: %w", err)
	}

	queryServer := httpapi.NewServer(cfg.ListenAddr, reg, trackPool, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	trackPool.Start(gctx)

	janitor := registry.NewJanitor(reg, store, trackPool, cfg.JanitorInterval, cfg.RateLimitWindow, log)
	go func() {
		if err := janitor.Run(gctx); err != nil {
			log.Warn().Err(err).Msg("janitor exited")
		}
	}()

	g.Go(func() error {
		return surface.Run(gctx)
	})

	g.Go(func() error {
		return queryServer.Run(gctx)
	})

	if cfg.MetricsEnabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	trackPool.Stop()
	return nil
}

// serveMetrics runs the Prometheus HTTP server.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info().Str("addr", addr).Msg("Prometheus metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// healthcheckCmd exits 0 if the query server is reachable.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp, err := http.Get("http://" + probeAddr(cfg.ListenAddr) + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

// probeAddr turns a listen address like ":8080" into a dialable host:port.
func probeAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("modbridge %s\n", Version)
		},
	}
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		redactWriter := logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(redactWriter).Level(level).With().Timestamp().Logger()
	}
	return base
}
