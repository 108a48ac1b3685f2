package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genstudio/internal/events"
	"genstudio/internal/generation"
	"genstudio/internal/http/handlers"
	"genstudio/internal/http/httpapi"
	"genstudio/internal/infra"
	"genstudio/internal/infra/geoip"
	"genstudio/internal/middleware"
	"genstudio/internal/providers/falqueue"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func run(cfg *infra.Config, logger infra.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	objects, staticDir, err := openObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	queue, err := falqueue.NewClient(falqueue.Options{
		APIKey:         cfg.FalKey,
		BaseURL:        cfg.FalBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return err
	}
	if !queue.HasCredentials() {
		logger.Warn().Msg("FAL_KEY is not set; provider calls will fail")
	}

	hub := events.NewHub(logger, middleware.OriginChecker(cfg.CORSOrigins))
	publishers := events.Multi{hub}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
	}

	ctrl, err := generation.NewController(generation.Deps{
		Jobs:    st.jobs,
		Images:  st.images,
		Queue:   queue,
		Objects: objects,
		Events:  publishers,
		Logger:  logger,
	}, generation.Options{LockTTL: cfg.CompletionLockTTL})
	if err != nil {
		return err
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Logger:  logger,
		Jobs:    ctrl,
		Gallery: st.gallery,
		Objects: objects,
		Ping:    st.ping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Country:         lookup,
		Events:          hub,
		StaticDir:       staticDir,
	})
	server := infra.NewHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("database", cfg.DatabaseDriver()).
			Str("storage", cfg.StorageDriver).
			Msg("api listening")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("http server exited")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
	return nil
}
