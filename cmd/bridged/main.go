package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Yahir019cx/pool-and-chill-app/internal/channel"
	"github.com/Yahir019cx/pool-and-chill-app/internal/config"
	"github.com/Yahir019cx/pool-and-chill-app/internal/health"
	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk/sim"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Reconfigure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service})
	logger := log.WithComponent("bridged")
	for _, change := range config.Diff(config.Default(), cfg) {
		logger.Debug().Str("event", "config.override").Msg(change)
	}

	if cfg.Server.AuthToken == config.GenerateAuthToken {
		tok, err := config.GenerateToken()
		if err != nil {
			return fmt.Errorf("generate auth token: %w", err)
		}
		cfg.Server.AuthToken = tok
		fmt.Fprintf(os.Stderr, "auth token: %s\n", tok)
	}

	policy, _ := verification.ParseResolvePolicy(cfg.Bridge.ResolvePolicy)
	launchMode, _ := verification.ParseLaunchMode(cfg.SDK.LaunchMode)
	scenario, _ := sim.ParseScenario(cfg.Sim.Scenario)

	simSDK := sim.New(sim.Options{
		StepDelay:       cfg.Sim.StepDelay,
		UIDelay:         cfg.Sim.UIDelay,
		DefaultScenario: scenario,
		AutoLaunch:      launchMode == verification.LaunchBySDK,
	})
	defer simSDK.Close()

	store := session.NewStore(cfg.Bridge.HistorySize)
	var journal *session.Journal
	if cfg.Bridge.PersistHistory {
		journal = session.NewJournal(cfg.Bridge.StateDir)
		restored, err := journal.Load()
		if err != nil {
			logger.Warn().Err(err).Str("path", journal.Path()).Msg("attempt history not restored")
		}
		logger.Info().
			Str("event", "journal.restored").
			Str("path", journal.Path()).
			Int("attempts", store.Restore(restored)).
			Msg("attempt history restored")
	}
	tracker := health.NewTracker(cfg.Bridge.HealthThreshold)
	loop := verification.NewLoop()

	bridge := verification.NewBridge(simSDK,
		verification.WithExecutor(loop),
		verification.WithConfiguration(cfg.SDK.Configuration()),
		verification.WithResolvePolicy(policy),
		verification.WithLaunchMode(launchMode),
		verification.WithTimeout(cfg.Bridge.RequestTimeout),
		verification.WithHost(sdk.Host{ID: cfg.SDK.Host}),
		verification.WithObserver(verification.Observers{store, tracker}),
	)
	defer bridge.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bridge.Initialize(ctx, sdk.AppContext{Name: cfg.SDK.AppName, Version: version}); err != nil {
		return fmt.Errorf("initialize sdk: %w", err)
	}

	broadcaster := channel.NewBroadcaster(simSDK.State(), store, cfg.Privacy.NewPrivacyFilter(), 30*time.Second, cfg.Server.MaxConnections)
	defer broadcaster.Stop()

	server := channel.NewServer(bridge, store, broadcaster, health.NewChecker(tracker), channel.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthToken:      cfg.Server.AuthToken,
		RateLimit:      cfg.Server.RateLimit,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if journal != nil {
		g.Go(func() error {
			return journal.Persist(gctx, store)
		})
	}
	g.Go(func() error {
		logger.Info().
			Str("event", "server.listening").
			Str("addr", httpServer.Addr).
			Str("channel", channel.ChannelName).
			Msg("bridge listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "server.shutdown").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
