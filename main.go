package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spectra-gallery/spectra-playground/api"
	"github.com/spectra-gallery/spectra-playground/cache"
	"github.com/spectra-gallery/spectra-playground/cache/memcache"
	"github.com/spectra-gallery/spectra-playground/cache/redis"
	"github.com/spectra-gallery/spectra-playground/config"
	"github.com/spectra-gallery/spectra-playground/lab"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/mq"
	"github.com/spectra-gallery/spectra-playground/mq/chanmq"
	"github.com/spectra-gallery/spectra-playground/mq/sqsmq"
	"github.com/spectra-gallery/spectra-playground/service"
	"github.com/spectra-gallery/spectra-playground/store"
	"github.com/spectra-gallery/spectra-playground/store/dynamo"
	"github.com/spectra-gallery/spectra-playground/store/memstore"
	"github.com/spectra-gallery/spectra-playground/worker"
)

const shutdownGrace = 10 * time.Second

type backends struct {
	store      store.PlaygroundStore
	cache      cache.PlaygroundCache
	sweepQueue mq.MessageQueue
	close      func()
}

func newBackends(ctx context.Context, cfg *config.Config, logger logging.Logger) (backends, error) {
	if cfg.Backend == config.BackendMemory {
		return backends{
			store:      memstore.New(),
			cache:      memcache.New(),
			sweepQueue: chanmq.New(),
			close:      func() {},
		}, nil
	}

	playgroundStore, err := dynamo.NewDynamoPlaygroundStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
	if err != nil {
		return backends{}, err
	}
	sweepQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.SQSShareSweepQueue)
	if err != nil {
		return backends{}, err
	}
	playgroundCache, err := redis.NewRedisPlaygroundCache(ctx, cfg.DevMode, cfg.RedisEndpoint, logger)
	if err != nil {
		return backends{}, err
	}
	return backends{
		store:      playgroundStore,
		cache:      playgroundCache,
		sweepQueue: sweepQueue,
		close:      func() { playgroundCache.Close() },
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	b, err := newBackends(shutdownCtx, cfg, logger)
	if err != nil {
		logger.Error(shutdownCtx, "failed to create backends", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer b.close()

	labClient, err := lab.NewHTTPClient(shutdownCtx, lab.Options{
		BaseURL:      cfg.LabAPIURL,
		ClientID:     cfg.LabClientID,
		ClientSecret: cfg.LabClientSecret,
		TokenURL:     cfg.LabTokenURL,
	})
	if err != nil {
		logger.Error(shutdownCtx, "failed to create lab client", "error", err)
		os.Exit(1)
	}

	svc, err := service.NewService(cfg, b.store, b.cache, b.sweepQueue, labClient, worker.NewKDFPool(cfg.KDFWorkers), logger)
	if err != nil {
		logger.Error(shutdownCtx, "failed to create service", "error", err)
		os.Exit(1)
	}

	sweeper := worker.NewShareSweeper(b.sweepQueue, b.store, b.cache, logger, nil)
	go sweeper.Run(shutdownCtx)

	playgroundAPI := api.NewPlaygroundAPI(svc, logger, shutdownCtx)
	mux := http.NewServeMux()
	playgroundAPI.RegisterRoutes(mux, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              ":" + cfg.HostPort,
		Handler:           api.WithCORS(mux, cfg.AllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-shutdownCtx.Done()
		logger.Info(context.Background(), "server shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "graceful shutdown failed", "error", err)
		}
	}()

	logger.Info(shutdownCtx, "starting server", "port", cfg.HostPort, "backend", cfg.Backend, "kdf", cfg.KDFScheme)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(shutdownCtx, "server failed", "error", err)
	}
}
