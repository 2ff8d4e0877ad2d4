package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blazelabs/lottery-engine/internal/api"
	"github.com/blazelabs/lottery-engine/internal/engine"
	"github.com/blazelabs/lottery-engine/internal/oracle"
	"github.com/blazelabs/lottery-engine/internal/pricefeed"
	"github.com/blazelabs/lottery-engine/internal/token"
	"github.com/blazelabs/lottery-engine/internal/upkeep"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/events"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	homeTokenID = "BLZ"
	usdPair     = "BLZ/USD"

	// simulated answer latency of the development randomness source
	devOracleDelay = 2 * time.Second
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "lotteryd",
		Short: "Numbers-lottery round accounting and settlement engine",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its HTTP API and upkeep worker",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "events",
		Short: "Tail the engine event stream from NATS",
		RunE: func(_ *cobra.Command, _ []string) error {
			return tailEvents()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(&logger.Options{
		Level:      logger.ParseLevel(cfg.LogLevel),
		TimeFormat: time.RFC3339,
	})
	logger.Info("starting lotteryd", "environment", cfg.Environment)

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("open kvstore: %w", err)
	}
	defer kv.Close()

	emitter, closeQueue, err := buildEmitter(cfg)
	if err != nil {
		return err
	}
	if closeQueue != nil {
		defer closeQueue()
	}

	registry := token.NewRegistry()
	registry.Register(homeTokenID, token.NewKVLedger(kv, homeTokenID))
	for tokenID := range cfg.AltTokens {
		registry.Register(tokenID, token.NewKVLedger(kv, tokenID))
	}

	coord := oracle.NewLocalCoordinator(kv, devOracleDelay)
	eng, err := engine.New(cfg.Engine, kv, registry, homeTokenID, coord, emitter)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := seedAltTokens(eng, cfg); err != nil {
		return err
	}
	if cfg.Upkeep.Identity != "" {
		if err := eng.SetUpkeeper(cfg.Engine.Owner, cfg.Upkeep.Identity, true); err != nil {
			return fmt.Errorf("register upkeeper: %w", err)
		}
	}

	feed := pricefeed.NewStaticFeed(0)
	if cfg.PriceFeed.USDPrice != "" {
		feed.SetPrice(usdPair, decimal.RequireFromString(cfg.PriceFeed.USDPrice))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := upkeep.NewManager()
	if cfg.Upkeep.Enabled {
		manager = upkeep.NewManager(upkeep.NewPollWorker(eng, cfg.Upkeep))
	}
	manager.Start(ctx)

	server := api.NewServer(cfg.API, eng, feed, usdPair)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	cancel()
	manager.Stop()
	coord.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("bye")
	return nil
}

// tailEvents subscribes a durable consumer to the engine event stream and
// prints every event as it arrives.
func tailEvents() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(&logger.Options{
		Level:      logger.ParseLevel(cfg.LogLevel),
		TimeFormat: time.RFC3339,
	})
	if !cfg.NATS.Enabled {
		return fmt.Errorf("nats is disabled in %s", configPath)
	}

	nc, err := infra.GetNATSConnection(cfg.NATS, cfg.Environment)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	manager, err := infra.NewNATsMessageQueueManager(events.StreamName, events.SubjectWildcards, nc)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	queue, err := manager.NewMessageQueue("events")
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer queue.Close()

	err = queue.Dequeue(fmt.Sprintf("%s.events.*", events.StreamName), func(message []byte) error {
		fmt.Println(string(message))
		return nil
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

// buildEmitter wires the NATS JetStream emitter when messaging is enabled and
// falls back to a no-op emitter otherwise.
func buildEmitter(cfg config.Config) (events.Emitter, func(), error) {
	if !cfg.NATS.Enabled {
		return events.NoopEmitter{}, nil, nil
	}

	nc, err := infra.GetNATSConnection(cfg.NATS, cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	manager, err := infra.NewNATsMessageQueueManager(events.StreamName, events.SubjectWildcards, nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create stream: %w", err)
	}
	queue, err := manager.NewMessageQueue("events")
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create queue: %w", err)
	}

	closeFn := func() {
		queue.Close()
		nc.Close()
	}
	return events.NewQueueEmitter(queue), closeFn, nil
}

// seedAltTokens pushes the configured alternate tokens into the engine at
// boot so operators don't have to replay admin calls after a restart.
func seedAltTokens(eng *engine.Engine, cfg config.Config) error {
	owner := cfg.Engine.Owner
	for tokenID, alt := range cfg.AltTokens {
		if err := eng.SetAltDistribution(owner, tokenID, alt.Distribution, alt.Pair); err != nil {
			return fmt.Errorf("alt token %s: %w", tokenID, err)
		}
		if err := eng.SetAltPrice(owner, tokenID, alt.ParsedPrice()); err != nil {
			return fmt.Errorf("alt token %s: %w", tokenID, err)
		}
		if err := eng.AcceptAlt(owner, tokenID, true); err != nil {
			return fmt.Errorf("alt token %s: %w", tokenID, err)
		}
	}
	return nil
}
