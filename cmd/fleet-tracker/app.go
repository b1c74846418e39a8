package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/config"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/postgres"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/rabbitmq"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/adapters/api"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/adapters/cache"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/adapters/queue"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/adapters/repository"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/adapters/ws"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/app"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// run wires the process together: config, store, optional cache and broker,
// the relay core, and the HTTP/WebSocket server. Any failure here is a
// startup error and terminates the process before connections are accepted.
func run(ctx context.Context, cfgPath string) error {
	log := logger.New("fleet-tracker")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load configuration; a missing store URI or port is fatal
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	log.Info(ctx, "config_loaded", "Configuration loaded successfully", nil)

	// position store (required)
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()
	store := repository.NewPositionStore(pool)

	// last-position cache (optional)
	var locationCache domain.LocationCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()
		locationCache = cache.NewLocationCache(rdb, cfg.CacheTTL())
		log.Info(ctx, "redis_connected", "Connected to Redis", map[string]any{"addr": cfg.Redis.Addr})
	}

	// fleet event export (optional)
	var events domain.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.Connect(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()
		events = queue.NewFleetPublisher(rmq)
	}

	// relay core
	hub := ws.NewHub(log)
	registry := app.NewSessionRegistry()
	presence := app.NewPresence(log, store, hub, events)
	relay := app.NewLocationRelay(log, store, hub, locationCache, events)
	wsHandler := ws.NewHandler(log, hub, registry, presence, relay)

	// routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", wsHandler.HandleWS)
	apiHandler := api.NewHandler(log, store, locationCache, hub, pool)
	apiHandler.RegisterRoutes(mux)

	// no ReadTimeout/WriteTimeout: sessions are long-lived WebSockets and
	// enforce their own read deadlines and write timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Fleet tracker started on port %d", cfg.WebSocket.Port),
		map[string]any{"port": cfg.WebSocket.Port},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		log.Info(ctx, "shutdown_complete", "Fleet tracker stopped", nil)
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.WebSocket.Port})
			return err
		}
	}

	return nil
}
