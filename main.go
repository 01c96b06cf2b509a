// main.go
// Visitor gate kiosk API: geofenced check-in, local-first storage and
// background sync to the remote store.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"visitorgate/auth"
	"visitorgate/cache"
	"visitorgate/config"
	"visitorgate/coordinator"
	"visitorgate/db"
	"visitorgate/geo"
	"visitorgate/handlers"
	"visitorgate/logger"
	"visitorgate/middleware"
	"visitorgate/notify"
	"visitorgate/registry"
	"visitorgate/syncer"
	"visitorgate/visitors"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "visitorgate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envErr != nil {
		log.Info("⚠️  No .env file found, using system environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Invalid configuration", zap.Error(err))
	}

	log.Info("🚀 Starting visitor gate API server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("remote", cfg.Remote.Backend),
		zap.String("cache", cfg.Cache.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tz, err := cfg.Location()
	if err != nil {
		log.Fatal("❌ Invalid kiosk time zone", zap.String("time_zone", cfg.Kiosk.TimeZone), zap.Error(err))
	}

	localCache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	remote, err := db.Open(ctx, db.Options{
		Backend: cfg.Remote.Backend,
		Supabase: db.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey,
			Timeout:    cfg.Supabase.Timeout,
			RetryCount: cfg.Supabase.RetryCount,
			RetryWait:  cfg.Supabase.RetryWait,
		},
		Postgres: db.PostgresConfig{
			DSN:         cfg.Postgres.DSN,
			MaxConns:    cfg.Postgres.MaxOpenConns,
			MaxIdle:     cfg.Postgres.MaxIdleConns,
			ConnMaxLife: cfg.Postgres.ConnMaxLife,
		},
		FirebaseProjectID:   cfg.Firebase.ProjectID,
		FirebaseCredentials: cfg.Firebase.CredentialsPath,
	}, log)
	if err != nil {
		log.Fatal("❌ Failed to initialize remote store", zap.Error(err))
	}
	defer remote.Close()

	// Local collections start empty; the gateway hydrates them from the
	// cache and the remote store, installing default locations if needed.
	reg := registry.New(nil)
	store := visitors.NewStore(tz)
	dir := visitors.NewDirectory()
	reports := geo.NewDeviceReports()

	locator := geo.NewLocator(reports, localCache, geo.LocatorConfig{
		HighAccuracy: cfg.GeoFix.HighAccuracy,
		Timeout:      cfg.GeoFix.Timeout,
		MaxAge:       cfg.GeoFix.MaxAge,
		CacheFor:     cfg.GeoFix.CacheFor,
		Retries:      cfg.GeoFix.Retries,
		RetryPause:   cfg.GeoFix.RetryPause,
	}, log)

	gateway := syncer.New(remote, localCache, reg, store, dir, syncer.Config{
		Interval:     cfg.Sync.Interval,
		ReadyTimeout: cfg.Sync.ReadyTimeout,
	}, log)

	coord := coordinator.New(coordinator.Deps{
		Registry:  reg,
		Store:     store,
		Directory: dir,
		Locator:   locator,
		Gateway:   gateway,
		Notices:   notify.NewCenter(),
	}, log)

	if cfg.Sync.Enabled {
		coord.Start(ctx)
		if err := coord.WaitReady(ctx, cfg.Sync.ReadyTimeout); err != nil {
			log.Warn("⚠️  Sync gateway not ready, serving while it finishes loading", zap.Error(err))
		}
	} else {
		log.Warn("⚠️  Background sync disabled, running on local state only")
		if err := gateway.LoadLocal(ctx); err != nil {
			log.Warn("failed to load local state", zap.Error(err))
		}
		if reg.Len() == 0 {
			if err := reg.Replace(registry.Defaults(time.Now())); err != nil {
				log.Fatal("❌ Failed to install default locations", zap.Error(err))
			}
		}
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	log.Info("🔐 JWT Manager initialized", zap.Duration("expiration", cfg.JWT.Expiration))

	mux := handlers.NewMux(handlers.Routes{
		Auth:  handlers.NewAuthHandler(auth.Admin{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash}, jwtManager, log),
		Kiosk: handlers.NewKioskHandler(coord, reports, log),
		Admin: handlers.NewAdminHandler(coord, tz, log),
		Sync:  handlers.NewSyncHandler(coord, log),
		JWT:   jwtManager,
	})
	log.Info("✅ Handlers initialized")

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters(ctx)
	log.Info("🛡️  Rate limiter initialized",
		zap.Int("requests", cfg.RateLimit.Requests),
		zap.Duration("window", cfg.RateLimit.Window),
	)

	// Apply global middleware
	handler := middleware.CORSMiddleware(cfg.CORS.AllowedOrigins)(mux)
	handler = rateLimiter.Middleware()(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("✅ Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("❌ Server forced to shutdown", zap.Error(err))
	}

	// Last attempt to push what is still queued.
	if gateway.Online() {
		if err := coord.Push(shutdownCtx); err != nil {
			log.Warn("changes left queued at shutdown", zap.Error(err))
		}
	}

	log.Info("✅ Server stopped gracefully")
}

// openCache returns the durable local cache and its cleanup. A Redis cache
// that cannot be reached falls back to memory so the kiosk keeps working.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Cache, func()) {
	if cfg.Cache.Backend != "redis" {
		log.Warn("⚠️  Using in-memory cache; local state is lost on restart")
		return cache.NewMemoryCache(), func() {}
	}

	client := cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	rc := cache.NewRedisCache(client, cfg.Cache.KeyPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Error("❌ Redis unavailable, falling back to in-memory cache", zap.Error(err))
		client.Close()
		return cache.NewMemoryCache(), func() {}
	}

	log.Info("💾 Redis cache connected", zap.String("addr", cfg.Cache.RedisAddr))
	return rc, func() { client.Close() }
}
