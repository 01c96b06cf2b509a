package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"visitorgate/auth"
	"visitorgate/config"
	"visitorgate/db"
	"visitorgate/logger"
	"visitorgate/registry"
)

func main() {
	hash := flag.String("hash-password", "", "print the bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	force := flag.Bool("force", false, "write the default locations even when the remote already has some")
	flag.Parse()

	if *hash != "" {
		h, err := auth.HashPassword(*hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Logging.Level, "console", "visitorgate-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if envErr != nil {
		log.Info("No .env file found, using system environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	remote, err := db.Open(ctx, db.Options{
		Backend: cfg.Remote.Backend,
		Supabase: db.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey,
			Timeout:    cfg.Supabase.Timeout,
			RetryCount: cfg.Supabase.RetryCount,
			RetryWait:  cfg.Supabase.RetryWait,
		},
		Postgres:            db.PostgresConfig{DSN: cfg.Postgres.DSN},
		FirebaseProjectID:   cfg.Firebase.ProjectID,
		FirebaseCredentials: cfg.Firebase.CredentialsPath,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize remote store", zap.Error(err))
	}
	defer remote.Close()

	log.Info("🌱 Starting database seeding...", zap.String("backend", cfg.Remote.Backend))

	if pg, ok := remote.(*db.PostgresStore); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create schema", zap.Error(err))
		}
		log.Info("  ✓ Schema ready")
	}

	if err := seedLocations(ctx, remote, *force, log); err != nil {
		log.Fatal("Failed to seed locations", zap.Error(err))
	}

	log.Info("✅ Database seeding completed successfully!")
}

func seedLocations(ctx context.Context, remote db.Store, force bool, log *zap.Logger) error {
	existing, err := remote.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list locations: %w", err)
	}
	if len(existing) > 0 && !force {
		log.Info("  ✓ Locations already present, skipping", zap.Int("count", len(existing)))
		return nil
	}

	defaults := registry.Defaults(time.Now())
	if err := remote.UpsertLocations(ctx, defaults); err != nil {
		return fmt.Errorf("failed to upsert default locations: %w", err)
	}
	for _, loc := range defaults {
		log.Info("  ✓ Created location", zap.String("name", loc.Name), zap.String("category", string(loc.Category)))
	}
	return nil
}
