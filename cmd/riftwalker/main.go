// Command riftwalker crawls the League of Legends match-history graph
// through a rate-limit-aware client, starting from a seed summoner and
// fanning out across concurrent walkers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sprintleague/riftwalker/internal/config"
	"github.com/sprintleague/riftwalker/internal/crawl"
	"github.com/sprintleague/riftwalker/internal/endpoint"
	"github.com/sprintleague/riftwalker/internal/riotapi"
	"github.com/sprintleague/riftwalker/internal/statusapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := initLogger(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	region, err := endpoint.ParseRegion(cfg.Region)
	if err != nil {
		logger.Fatal("invalid region", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	apiCtx := riotapi.NewContext(cfg.APIKey, httpClient, logger, cfg.MaxCooldown)

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		logger.Fatal("building output sink", zap.Error(err))
	}
	defer closeSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping crawl")
		cancel()
	}()

	var g errgroup.Group

	var publisher crawl.Publisher
	if cfg.StatusEnabled {
		statusSrv := statusapi.New(apiCtx.Endpoints(), nil, logger)
		publisher = statusSrv
		g.Go(func() error {
			logger.Info("status api listening", zap.String("addr", cfg.StatusAddr))
			return statusSrv.Run(ctx, cfg.StatusAddr)
		})
	}

	driver := crawl.NewDriver(apiCtx, crawl.Config{
		Region:                region,
		Sink:                  sink,
		Logger:                logger,
		MaxWalkerStartsPerSec: cfg.MaxWalkerStartsPerSec,
		RetryAttempts:         cfg.RetryAttempts,
		Publisher:             publisher,
	})

	g.Go(func() error {
		err := driver.Run(ctx, cfg.Seed, cfg.Steps, cfg.Workers)
		cancel() // stop the status server once the crawl itself is done
		return err
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("crawl finished with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("riftwalker shutdown complete", zap.Int("matches_seen", driver.SeenCount()))
}

func initLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}

func buildSink(cfg config.Config) (crawl.Sink, func(), error) {
	if cfg.OutputPath == "" {
		return crawl.NewMemorySink(), func() {}, nil
	}

	f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	sink := crawl.NewJSONLineSink(f)
	return sink, func() {
		_ = f.Sync()
		_ = f.Close()
	}, nil
}
