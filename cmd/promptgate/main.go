// Package main is the entry point for PromptGate, an authenticated,
// tiered-quota gateway in front of a text-generation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/artpar/promptgate/adapters/clock"
	"github.com/artpar/promptgate/adapters/email"
	"github.com/artpar/promptgate/adapters/hasher"
	"github.com/artpar/promptgate/adapters/httpx"
	"github.com/artpar/promptgate/adapters/idgen"
	"github.com/artpar/promptgate/adapters/memory"
	"github.com/artpar/promptgate/adapters/metrics"
	redisstore "github.com/artpar/promptgate/adapters/redis"
	"github.com/artpar/promptgate/adapters/schedule"
	"github.com/artpar/promptgate/app"
	"github.com/artpar/promptgate/config"
	"github.com/artpar/promptgate/domain/tier"
	"github.com/artpar/promptgate/ports"
	"github.com/artpar/promptgate/web"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "promptgate.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	hotReload := flag.Bool("hot-reload", true, "Enable hot reload of configuration")
	flag.Parse()

	if *showVersion {
		fmt.Printf("promptgate %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	if *validateOnly {
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration valid")
		os.Exit(0)
	}

	if err := run(*configPath, *hotReload); err != nil {
		fmt.Fprintf(os.Stderr, "promptgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, hotReload bool) error {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	holder, err := config.NewHolder(configPath, bootLogger)
	if err != nil {
		return err
	}
	defer holder.Stop()

	cfg := holder.Get()
	logger := buildLogger(cfg.Logging)

	if hotReload {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watching unavailable")
		}
		holder.WatchSignals()
	}

	// Stores
	var (
		keys     ports.KeyStore
		counters ports.CounterStore
		pools    ports.PoolStore
		events   ports.EventStore
	)
	switch cfg.Store.Mode {
	case "redis":
		store, err := redisstore.New(redisstore.Config{
			URL:       cfg.Store.RedisURL,
			Retention: cfg.Webhook.Retention,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		keys, counters, pools, events = store, store, store, store
	default:
		keys = memory.NewKeyStore(cfg.Keys)
		counters = memory.NewCounterStore(0)
		pools = memory.NewPoolStore()
		eventStore := memory.NewEventStore(memory.EventStoreConfig{
			Retention: cfg.Webhook.Retention,
			Clock:     clock.Real{},
		})
		defer eventStore.Close()
		events = eventStore
	}

	ctx := context.Background()
	if err := seedStores(ctx, cfg, keys, pools, logger); err != nil {
		return err
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		for tierID := range cfg.Pools {
			if size, err := pools.Size(ctx, tierID); err == nil {
				collector.PoolKeys.WithLabelValues(tierID).Set(float64(size))
			}
		}
	}

	tiers := func() []tier.Tier { return holder.Get().TierList() }

	// Services
	tracker := app.NewQuotaTracker(keys, counters, tiers, logger)
	gate := app.NewAuthGate(tracker, logger)
	provisioner := app.NewProvisioner(pools, keys, counters, collector, logger)

	var notifier ports.Notifier
	switch cfg.Email.Mode {
	case "smtp":
		smtpCfg := email.DefaultConfig()
		smtpCfg.Host = cfg.Email.Host
		if cfg.Email.Port != 0 {
			smtpCfg.Port = cfg.Email.Port
		}
		smtpCfg.Username = cfg.Email.Username
		smtpCfg.Password = cfg.Email.Password
		if cfg.Email.From != "" {
			smtpCfg.From = cfg.Email.From
		}
		if cfg.Email.FromName != "" {
			smtpCfg.FromName = cfg.Email.FromName
		}
		smtpCfg.UseTLS = cfg.Email.UseTLS
		smtpCfg.UseImplicit = cfg.Email.Implicit
		notifier, err = email.NewSMTPNotifier(smtpCfg)
		if err != nil {
			return err
		}
	default:
		logger.Warn().Msg("email disabled, provisioned keys will only appear in logs")
		notifier = email.NewNoopNotifier()
	}

	ingestor := app.NewWebhookIngestor(app.IngestorDeps{
		Secret:      cfg.Webhook.Secret,
		Events:      events,
		Provisioner: provisioner,
		Notifier:    notifier,
		Tiers:       tiers,
		Metrics:     collector,
		Logger:      logger,
	})

	upstream := httpx.NewUpstreamClient(httpx.UpstreamConfig{
		URL:         cfg.Upstream.URL,
		APIKey:      cfg.Upstream.APIKey,
		Model:       cfg.Upstream.Model,
		MaxTokens:   cfg.Upstream.MaxTokens,
		Temperature: cfg.Upstream.Temperature,
		Timeout:     cfg.Upstream.Timeout,
	})

	// Admin token is held only as a bcrypt hash.
	bc := hasher.NewBcrypt(0)
	var adminHash []byte
	if cfg.Auth.AdminToken != "" {
		adminHash, err = bc.Hash(cfg.Auth.AdminToken)
		if err != nil {
			return fmt.Errorf("hash admin token: %w", err)
		}
	}

	handler := web.New(web.Deps{
		Gate:            gate,
		Tracker:         tracker,
		Ingestor:        ingestor,
		Upstream:        upstream,
		KeyHeader:       cfg.Auth.Header,
		SignatureHeader: cfg.Webhook.Header,
		Hasher:          bc,
		AdminHash:       adminHash,
		IDGen:           idgen.UUID{},
		Metrics:         collector,
		MetricsPath:     cfg.Metrics.Path,
		Logger:          logger,
	})

	// Scheduled resets
	if spec := cfg.Schedule.ResetCron; spec != "" {
		scheduler, err := schedule.New(spec, tracker, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info().Str("schedule", spec).Msg("scheduled usage resets enabled")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", version).Msg("promptgate listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedStores loads pre-configured keys and pool contents. Pools are only
// seeded when empty so a restart against a shared store does not
// duplicate unissued keys.
func seedStores(ctx context.Context, cfg *config.Config, keys ports.KeyStore, pools ports.PoolStore, logger zerolog.Logger) error {
	for key, tierID := range cfg.Keys {
		if err := keys.Register(ctx, key, tierID); err != nil {
			return fmt.Errorf("seed key: %w", err)
		}
	}

	for tierID, poolKeys := range cfg.Pools {
		size, err := pools.Size(ctx, tierID)
		if err != nil {
			return fmt.Errorf("inspect pool %q: %w", tierID, err)
		}
		if size > 0 {
			logger.Info().Str("tier", tierID).Int("size", size).Msg("pool already seeded, skipping")
			continue
		}
		if err := pools.Seed(ctx, tierID, poolKeys); err != nil {
			return fmt.Errorf("seed pool %q: %w", tierID, err)
		}
		logger.Info().Str("tier", tierID).Int("keys", len(poolKeys)).Msg("pool seeded")
	}

	return nil
}

// buildLogger creates the application logger from config.
func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
