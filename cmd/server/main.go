package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/delvtech/agent0-sub002/internal/config"
	"github.com/delvtech/agent0-sub002/internal/limits"
	"github.com/delvtech/agent0-sub002/internal/logger"
	"github.com/delvtech/agent0-sub002/internal/metrics"
	"github.com/delvtech/agent0-sub002/internal/store"
	"github.com/delvtech/agent0-sub002/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, cleanup := openStore(ctx, cfg)
	defer cleanup()

	if pools, err := st.ListPools(ctx); err != nil {
		log.Warn().Err(err).Msg("count existing pools")
	} else {
		metrics.ActivePools.Set(float64(len(pools)))
	}

	// --- Exposure limits ---
	limiter := limits.NewPositionLimiter(cfg.MaxLongPerPool, cfg.MaxShortPerPool, cfg.MaxPerAsset)

	// --- WebSocket hub ---
	hub := trade.NewWSHub()
	go hub.Run(ctx)

	// --- Trade service ---
	svc := trade.NewService(st, limiter, cfg.Pools, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"hyperdrive-pricing"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	svc.Routes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("hyperdrive pricing service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("stopped")
}

// openStore connects PostgreSQL (plus the Redis cache when configured) or
// falls back to memory.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}
	}

	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	cleanup = append(cleanup, pool.Close)

	pg := store.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		closeAll()
		log.Fatal().Err(err).Msg("apply schema")
	}
	log.Info().Msg("connected to PostgreSQL")

	var st store.Store = pg
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, cache reads will fall back to PostgreSQL")
		}
		st = store.NewCachedStore(st, rdb, cfg.RedisCacheTTL)
		log.Info().Dur("ttl", cfg.RedisCacheTTL).Msg("Redis cache enabled")
	}
	return st, closeAll
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// cors allows frontend cross-origin requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
