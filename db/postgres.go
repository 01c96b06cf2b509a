package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/models"
)

// PostgresConfig configures a direct database connection.
type PostgresConfig struct {
	DSN         string
	MaxConns    int
	MaxIdle     int
	ConnMaxLife time.Duration
}

// Schema creates the four tables when they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS visitors (
	id            TEXT PRIMARY KEY,
	full_name     TEXT NOT NULL,
	last_name     TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	location_name TEXT,
	company       TEXT,
	phone         TEXT,
	purpose       TEXT,
	checkin_time  TIMESTAMPTZ NOT NULL,
	checkout_time TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS visit_logs (
	id            TEXT PRIMARY KEY,
	visitor_id    TEXT NOT NULL DEFAULT '',
	visitor_name  TEXT NOT NULL DEFAULT '',
	full_name     TEXT NOT NULL,
	last_name     TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	action        TEXT NOT NULL,
	location_name TEXT,
	company       TEXT,
	phone         TEXT,
	purpose       TEXT,
	reason        TEXT,
	checkin_time  TIMESTAMPTZ NOT NULL,
	checkout_time TIMESTAMPTZ,
	timestamp     TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	radius     DOUBLE PRECISION NOT NULL CHECK (radius > 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS frequent_visitors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	first_name TEXT NOT NULL,
	added_date TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore writes the remote tables directly over lib/pq.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenPostgres connects and pings the database.
func OpenPostgres(cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLife > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLife)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresStore(conn, logger), nil
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(conn *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: conn, logger: logger.Named("postgres"), now: time.Now}
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// EnsureSchema creates missing tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &apperr.RemoteError{Op: "ping", Entity: "database", Err: err}
	}
	return nil
}

func (s *PostgresStore) ListVisitors(ctx context.Context) ([]models.VisitorSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, last_name, first_name, category, location_name,
		       company, phone, purpose, checkin_time, checkout_time, created_at
		FROM visitors
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Remote("list", string(models.EntityVisitors), err)
	}
	defer rows.Close()

	var out []models.VisitorSession
	for rows.Next() {
		var r visitorRow
		if err := rows.Scan(&r.ID, &r.FullName, &r.LastName, &r.FirstName, &r.Category, &r.LocationName,
			&r.Company, &r.Phone, &r.Purpose, &r.CheckinTime, &r.CheckoutTime, &r.CreatedAt); err != nil {
			return nil, apperr.Remote("list", string(models.EntityVisitors), err)
		}
		out = append(out, r.model())
	}
	return out, apperr.Remote("list", string(models.EntityVisitors), rows.Err())
}

func (s *PostgresStore) ListVisitLogs(ctx context.Context) ([]models.VisitLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, visitor_id, visitor_name, full_name, last_name, first_name, category, action,
		       location_name, company, phone, purpose, reason,
		       checkin_time, checkout_time, timestamp, created_at
		FROM visit_logs
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.Remote("list", string(models.EntityVisitLogs), err)
	}
	defer rows.Close()

	var out []models.VisitLogEntry
	for rows.Next() {
		var r visitLogRow
		if err := rows.Scan(&r.ID, &r.VisitorID, &r.VisitorName, &r.FullName, &r.LastName, &r.FirstName,
			&r.Category, &r.Action, &r.LocationName, &r.Company, &r.Phone, &r.Purpose, &r.Reason,
			&r.CheckinTime, &r.CheckoutTime, &r.Timestamp, &r.CreatedAt); err != nil {
			return nil, apperr.Remote("list", string(models.EntityVisitLogs), err)
		}
		out = append(out, r.model())
	}
	return out, apperr.Remote("list", string(models.EntityVisitLogs), rows.Err())
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, latitude, longitude, radius, created_at, updated_at
		FROM locations
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, apperr.Remote("list", string(models.EntityLocations), err)
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		var r locationRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Latitude, &r.Longitude, &r.Radius,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.Remote("list", string(models.EntityLocations), err)
		}
		out = append(out, r.model())
	}
	return out, apperr.Remote("list", string(models.EntityLocations), rows.Err())
}

func (s *PostgresStore) ListFrequentVisitors(ctx context.Context) ([]models.FrequentVisitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, last_name, first_name, added_date, created_at, updated_at
		FROM frequent_visitors
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Remote("list", string(models.EntityFrequentVisitors), err)
	}
	defer rows.Close()

	var out []models.FrequentVisitor
	for rows.Next() {
		var r frequentVisitorRow
		if err := rows.Scan(&r.ID, &r.Name, &r.LastName, &r.FirstName, &r.AddedDate,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.Remote("list", string(models.EntityFrequentVisitors), err)
		}
		out = append(out, r.model())
	}
	return out, apperr.Remote("list", string(models.EntityFrequentVisitors), rows.Err())
}

func (s *PostgresStore) LocationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM locations`)
	if err != nil {
		return nil, apperr.Remote("list ids", string(models.EntityLocations), err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Remote("list ids", string(models.EntityLocations), err)
		}
		ids = append(ids, id)
	}
	return ids, apperr.Remote("list ids", string(models.EntityLocations), rows.Err())
}

// DeleteAll empties table. The table name is checked against the known
// entities before it is interpolated.
func (s *PostgresStore) DeleteAll(ctx context.Context, table models.Entity) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+pq.QuoteIdentifier(string(table))); err != nil {
		return apperr.Remote("delete", string(table), err)
	}
	return nil
}

func (s *PostgresStore) DeleteLocations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return apperr.Remote("delete", string(models.EntityLocations), err)
	}
	return nil
}

func (s *PostgresStore) InsertVisitors(ctx context.Context, visitors []models.VisitorSession) error {
	if len(visitors) == 0 {
		return nil
	}
	return s.inTx(ctx, "insert", models.EntityVisitors, `
		INSERT INTO visitors (id, full_name, last_name, first_name, category, location_name,
		                      company, phone, purpose, checkin_time, checkout_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		len(visitors), func(i int) []any {
			r := toVisitorRow(visitors[i])
			return []any{r.ID, r.FullName, r.LastName, r.FirstName, r.Category, r.LocationName,
				r.Company, r.Phone, r.Purpose, r.CheckinTime, r.CheckoutTime, r.CreatedAt}
		})
}

func (s *PostgresStore) InsertVisitLogs(ctx context.Context, logs []models.VisitLogEntry) error {
	if len(logs) == 0 {
		return nil
	}
	return s.inTx(ctx, "insert", models.EntityVisitLogs, `
		INSERT INTO visit_logs (id, visitor_id, visitor_name, full_name, last_name, first_name, category,
		                        action, location_name, company, phone, purpose, reason,
		                        checkin_time, checkout_time, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		len(logs), func(i int) []any {
			r := toVisitLogRow(logs[i])
			return []any{r.ID, r.VisitorID, r.VisitorName, r.FullName, r.LastName, r.FirstName, r.Category,
				r.Action, r.LocationName, r.Company, r.Phone, r.Purpose, r.Reason,
				r.CheckinTime, r.CheckoutTime, r.Timestamp, r.CreatedAt}
		})
}

func (s *PostgresStore) InsertFrequentVisitors(ctx context.Context, visitors []models.FrequentVisitor) error {
	if len(visitors) == 0 {
		return nil
	}
	now := s.now()
	return s.inTx(ctx, "insert", models.EntityFrequentVisitors, `
		INSERT INTO frequent_visitors (id, name, last_name, first_name, added_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		len(visitors), func(i int) []any {
			r := toFrequentVisitorRow(visitors[i], now)
			return []any{r.ID, r.Name, r.LastName, r.FirstName, r.AddedDate, r.CreatedAt, r.UpdatedAt}
		})
}

func (s *PostgresStore) UpsertLocations(ctx context.Context, locations []models.Location) error {
	if len(locations) == 0 {
		return nil
	}
	now := s.now()
	return s.inTx(ctx, "upsert", models.EntityLocations, `
		INSERT INTO locations (id, name, category, latitude, longitude, radius, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			radius = EXCLUDED.radius,
			updated_at = EXCLUDED.updated_at`,
		len(locations), func(i int) []any {
			r := toLocationRow(locations[i])
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			if r.UpdatedAt.IsZero() {
				r.UpdatedAt = now
			}
			return []any{r.ID, r.Name, r.Category, r.Latitude, r.Longitude, r.Radius, r.CreatedAt, r.UpdatedAt}
		})
}

// inTx executes query once per row inside one transaction.
func (s *PostgresStore) inTx(ctx context.Context, op string, table models.Entity, query string, n int, args func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Remote(op, string(table), err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return apperr.Remote(op, string(table), err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return apperr.Remote(op, string(table), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Remote(op, string(table), err)
	}
	s.logger.Debug("rows written", zap.String("op", op), zap.String("table", string(table)), zap.Int("count", n))
	return nil
}
