package dispatchservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/geoindex"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/software/dispatch"
	"ride-dispatch/internal/software/ride/handler"
	"ride-dispatch/internal/software/ride/service"
	"ride-dispatch/internal/software/session"
)

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load the static config; the viper instance keeps serving the hot knobs
	cfg, v, err := config.Load("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	provider := config.NewProvider(v)

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to Redis for the geo index
	rdb, err := geoindex.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer func() { _ = rdb.Close() }()
	geoIndex := geoindex.New(rdb)

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL)

	// set up the storage layer
	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRepo()

	// the sharing link table is shared by the router, service and sweeper
	links := session.NewLinks()

	// set up the WebSocket event router
	router := websocket.NewRouter(logger, jwtManager, pub, uow, rideRepo, geoIndex, provider, links)

	// set up the dispatch manager and the ride service; the router gets
	// the service last because each side needs the other
	manager := dispatch.NewManager(logger, uow, rideRepo, geoIndex, router, provider)
	defer manager.Shutdown()

	svc := service.NewService(logger, uow, rideRepo, geoIndex, router, manager, provider, pub, links)
	router.SetRideService(svc)

	// background sweeper; one pass up front resumes rides orphaned by a
	// previous run
	sweeper := dispatch.NewSweeper(logger, uow, rideRepo, geoIndex, manager, provider, links)
	sweeper.Sweep(ctx)
	go sweeper.Run(ctx)

	// drain the location queue into the geo index and linked passengers
	go func() {
		if err := router.RunLocationConsumer(ctx, rmq); err != nil {
			logger.Error(ctx, "location_consumer_failed", "Location consumer terminated", err, nil)
		}
	}()

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewRideHTTPHandler(svc, logger, jwtManager)
	httpHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /ws/passenger/{passenger_id}", router.ConnectPassenger)
	mux.HandleFunc("GET /ws/captain/{captain_id}", router.ConnectCaptain)

	// concurrency limiter (global): blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.Server.Port),
		map[string]any{"port": cfg.Server.Port, "max_concurrent": maxConcurrent},
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
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Server.Port})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
