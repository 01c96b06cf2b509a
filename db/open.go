package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Options selects and configures a remote backend.
type Options struct {
	Backend             string
	Supabase            SupabaseConfig
	Postgres            PostgresConfig
	FirebaseProjectID   string
	FirebaseCredentials string
}

// Open connects to the backend named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendSupabase:
		return NewSupabaseStore(opts.Supabase, logger), nil
	case BackendPostgres:
		s, err := OpenPostgres(opts.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendFirestore:
		s, err := NewFirestoreStore(ctx, opts.FirebaseProjectID, opts.FirebaseCredentials, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", opts.Backend)
	}
}
