// Package db holds the remote store adapters. Each backend speaks the same
// four tables: visitors, visit_logs, locations and frequent_visitors.
package db

import (
	"context"
	"fmt"

	"visitorgate/models"
)

// Store is the remote source of truth. Collections are read whole; writes are
// bulk inserts, id-keyed upserts and deletes.
type Store interface {
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	ListVisitors(ctx context.Context) ([]models.VisitorSession, error)
	ListVisitLogs(ctx context.Context) ([]models.VisitLogEntry, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListFrequentVisitors(ctx context.Context) ([]models.FrequentVisitor, error)

	// LocationIDs returns the ids of every remote location.
	LocationIDs(ctx context.Context) ([]string, error)

	// DeleteAll removes every row of table.
	DeleteAll(ctx context.Context, table models.Entity) error
	// DeleteLocations removes the locations with the given ids.
	DeleteLocations(ctx context.Context, ids []string) error

	InsertVisitors(ctx context.Context, visitors []models.VisitorSession) error
	InsertVisitLogs(ctx context.Context, logs []models.VisitLogEntry) error
	InsertFrequentVisitors(ctx context.Context, visitors []models.FrequentVisitor) error
	// UpsertLocations inserts or updates locations by id.
	UpsertLocations(ctx context.Context, locations []models.Location) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendSupabase  = "supabase"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

func checkTable(table models.Entity) error {
	for _, e := range models.Entities {
		if e == table {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q", table)
}
