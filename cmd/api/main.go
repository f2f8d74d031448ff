package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biblioteca/internal/catalog"
	"biblioteca/internal/config"
	"biblioteca/internal/dedupe"
	"biblioteca/internal/httpx"
	"biblioteca/internal/ingest"
	"biblioteca/internal/library"
	"biblioteca/internal/metrics"
	"biblioteca/internal/platform/catalogapi"
	"biblioteca/internal/platform/logger"
	"biblioteca/internal/platform/openlibrary"
	"biblioteca/internal/resolve"
	"biblioteca/internal/search"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

const maxRequestBytes = 1 << 20

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		// logger settings come from the same config
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode, cfg.LogSalt)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool := mustOpenDB(ctx, log, cfg.DSN)
	defer dbPool.Close()

	m := metrics.New()

	store, closeStore := buildStore(cfg, dbPool, log, m)
	defer closeStore()

	gateway := search.NewGateway(store, log, m)
	detector := dedupe.NewDetector(gateway, cfg.DetectLimit, m)
	librarySvc := library.NewService(library.NewPostgresRepo(dbPool, cfg.DBTimeout))
	resolver := resolve.NewResolver(store, detector, librarySvc, cfg.ResolveConcurrency, log, m)

	olClient := openlibrary.NewClient(cfg.OpenLibraryUserAgent, cfg.OpenLibraryRPS, cfg.OpenLibraryRetries)
	ingestSvc := ingest.NewService(olClient, resolver, ingest.NewPostgresRepo(dbPool, cfg.DBTimeout),
		ingest.Config{BatchSize: 20, EnrichAuthors: true}, log)

	h := handlers{
		search:  search.NewHTTPHandler(gateway),
		dedupe:  dedupe.NewHTTPHandler(detector),
		catalog: catalog.NewHTTPHandler(catalog.NewService(store)),
		resolve: resolve.NewHTTPHandler(resolver),
		library: library.NewHTTPHandler(librarySvc),
		ingest:  ingest.NewHTTPHandler(ingestSvc, cfg.IngestSecret),
	}

	router := newRouter(h, cfg.JWTSecret, dbPool.Ping)
	rateLimiter := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	var handler http.Handler = router
	handler = rateLimiter.Middleware(handler)
	handler = httpx.RequestSizeLimitMiddleware(maxRequestBytes)(handler)
	handler = httpx.SecurityHeadersMiddleware(cfg.EnableHSTS)(handler)
	handler = httpx.CORSMiddleware(cfg.CORSOrigins)(handler)
	handler = httpx.AccessLogMiddleware(log)(handler)
	handler = httpx.RecoveryMiddleware(log)(handler)
	handler = httpx.RequestIDMiddleware(handler)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", cfg.Addr, "catalog_backend", cfg.CatalogBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

type handlers struct {
	search  *search.HTTPHandler
	dedupe  *dedupe.HTTPHandler
	catalog *catalog.HTTPHandler
	resolve *resolve.HTTPHandler
	library *library.HTTPHandler
	ingest  *ingest.HTTPHandler
}

func newRouter(h handlers, jwtSecret string, ping func(context.Context) error) *http.ServeMux {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	router.Handle("GET /metrics", promhttp.Handler())

	router.HandleFunc("GET /v1/catalog/search", h.search.Search)
	router.HandleFunc("POST /v1/catalog/duplicates", h.dedupe.Detect)
	router.HandleFunc("GET /v1/catalog/{type}/{id}", h.catalog.Get)
	router.HandleFunc("POST /v1/catalog/{type}/ensure", h.resolve.Ensure)

	auth := httpx.AuthMiddleware(jwtSecret)
	router.Handle("POST /v1/library/books", auth(http.HandlerFunc(h.resolve.AddBook)))
	router.Handle("GET /v1/library/books", auth(http.HandlerFunc(h.library.List)))
	router.Handle("PATCH /v1/library/books/{id}", auth(http.HandlerFunc(h.library.Update)))
	router.Handle("DELETE /v1/library/books/{id}", auth(http.HandlerFunc(h.library.Remove)))

	router.HandleFunc("POST /internal/jobs/ingest", h.ingest.Ingest)

	return router
}

// buildStore picks the catalog backend and puts the search cache in front of
// it when Redis is configured.
func buildStore(cfg config.Config, db *pgxpool.Pool, log *logger.Logger, m *metrics.Metrics) (catalog.Store, func()) {
	var store catalog.Store
	switch cfg.CatalogBackend {
	case config.BackendHTTP:
		store = catalogapi.NewClient(cfg.CatalogAPIURL, cfg.CatalogAPIToken, cfg.CatalogAPIRPS, cfg.CatalogAPIRetries, cfg.CatalogAPITimeout)
	default:
		store = catalog.NewPostgresRepo(db, cfg.DBTimeout)
	}

	if cfg.RedisAddr == "" {
		return store, func() {}
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("catalog search cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	return catalog.NewCachedStore(store, catalog.NewRedisKV(rdb), cfg.CacheTTL, log, m), func() { _ = rdb.Close() }
}

func mustOpenDB(ctx context.Context, log *logger.Logger, dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("cannot create db pool", "error", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Fatal("cannot ping database", "dsn", config.RedactDSN(dsn), "error", err)
	}
	log.Info("database connection OK")
	return pool
}
