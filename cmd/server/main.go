package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"food-dispatch-service/internal/adapters/cache"
	"food-dispatch-service/internal/adapters/geocode"
	"food-dispatch-service/internal/adapters/repositories"
	"food-dispatch-service/internal/api"
	"food-dispatch-service/internal/api/handlers"
	"food-dispatch-service/internal/config"
	"food-dispatch-service/internal/platform/db"
	"food-dispatch-service/internal/platform/logger"
	"food-dispatch-service/internal/ports"
	"food-dispatch-service/internal/realtime"
	"food-dispatch-service/internal/services"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores groups the adapters selected for this run.
type stores struct {
	drivers   ports.DriverRepository
	routes    ports.RouteRepository
	orders    ports.OrderRepository
	writer    ports.OrderWriter
	stats     ports.StatsProvider
	locations ports.DriverLocationStore
	geoCache  geocode.Cache
	checks    map[string]handlers.Pinger
	closers   []func() error
}

func (s *stores) close(log *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("close adapter", zap.Error(err))
		}
	}
}

// main is the application composition root.
// It wires concrete adapters (Postgres or memory, Redis, ORS) behind ports and
// serves HTTP and websocket traffic until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	var geocoder ports.Geocoder
	if cfg.ORSAPIKey != "" {
		g, err := geocode.NewORSGeocoder(cfg.ORSAPIKey, geocode.Options{
			Country: cfg.ORSCountry,
			Cache:   st.geoCache,
			Log:     log.Named("geocode"),
		})
		if err != nil {
			return err
		}
		geocoder = g
	} else {
		log.Info("ORS_API_KEY not set, address-only stops will be rejected")
	}

	tracker := services.NewOrderTracker(st.orders, log.Named("orders"))
	defer tracker.Close()

	dispatcher := services.NewDispatcher(st.drivers, st.routes, geocoder, log.Named("dispatch"), services.DispatcherConfig{
		RouteTTL:      cfg.RouteTTL,
		TrafficFactor: cfg.TrafficFactor,
	})

	hub := realtime.NewHub(realtime.HubDeps{
		Tracker:   tracker,
		Stats:     st.stats,
		Locations: st.locations,
		Drivers:   st.drivers,
		Log:       log.Named("realtime"),
	}, realtime.HubConfig{
		StaleDriverTimeout: cfg.StaleDriverTimeout,
		AllowedOrigins:     cfg.AllowedOrigins,
	})
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer hub.Stop()

	router := api.NewRouter(api.Deps{
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Orders:     st.writer,
		Stats:      st.stats,
		Hub:        hub,
		Checks:     st.checks,
	})

	// WriteTimeout stays zero: hijacked websocket connections manage their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-hub.Done():
			log.Warn("realtime hub stopped unexpectedly")
		}

		log.Info("shutting down", zap.Duration("grace_period", cfg.ShutdownPeriod))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()

		hub.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStores picks Postgres when DATABASE_URL is set and an in-memory store
// seeded from SEED_PATH otherwise. REDIS_URL moves live driver locations to Redis.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handlers.Pinger)}

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, conn.Close)

		if err := repositories.InitSchema(conn); err != nil {
			st.close(log)
			return nil, err
		}
		usePostgres(st, conn, cfg.GeocodeMaxAge)
		log.Info("using postgres storage")
	} else {
		store := repositories.NewMemoryStore()
		if err := seedMemory(store, cfg.SeedPath, log); err != nil {
			return nil, err
		}
		st.drivers, st.routes, st.orders, st.writer, st.stats = store, store, store, store, store
		log.Info("using in-memory storage")
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			st.close(log)
			return nil, err
		}
		st.closers = append(st.closers, client.Close)
		st.locations = cache.NewRedisDriverLocations(client, "")
		st.checks["redis"] = redisPinger(client)
		log.Info("using redis for driver locations")
	}

	return st, nil
}

func usePostgres(st *stores, conn *sql.DB, geocodeMaxAge time.Duration) {
	orders := repositories.NewPostgresOrderRepository(conn)

	st.drivers = repositories.NewPostgresDriverRepository(conn)
	st.routes = repositories.NewPostgresRouteRepository(conn)
	st.orders = orders
	st.writer = orders
	st.stats = orders
	st.geoCache = cache.NewSQLGeocodeCache(conn, geocodeMaxAge)
	st.checks["postgres"] = conn.PingContext
}

func seedMemory(store *repositories.MemoryStore, path string, log *zap.Logger) error {
	drivers, err := repositories.LoadDriverSeed(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("driver seed not found, starting without drivers", zap.String("path", path))
		return nil
	}
	if err != nil {
		return err
	}

	for _, d := range drivers {
		store.PutDriver(d)
	}
	log.Info("seeded drivers", zap.Int("count", len(drivers)), zap.String("path", path))
	return nil
}

func redisPinger(client *redis.Client) handlers.Pinger {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
