package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/models"
)

// SupabaseConfig locates a PostgREST endpoint.
type SupabaseConfig struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// SupabaseStore talks to the Supabase REST API (/rest/v1).
type SupabaseStore struct {
	httpClient *resty.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewSupabaseStore creates a client for cfg.URL authenticated with cfg.APIKey.
func NewSupabaseStore(cfg SupabaseConfig, logger *zap.Logger) *SupabaseStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/rest/v1").
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey)

	return &SupabaseStore{
		httpClient: client,
		logger:     logger.Named("supabase"),
		now:        time.Now,
	}
}

func (s *SupabaseStore) Close() error { return nil }

// Ping selects a single id from visitors.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []struct {
		ID string `json:"id"`
	}
	return s.get(ctx, "ping", models.EntityVisitors, map[string]string{"select": "id", "limit": "1"}, &rows)
}

func (s *SupabaseStore) ListVisitors(ctx context.Context) ([]models.VisitorSession, error) {
	var rows []visitorRow
	if err := s.list(ctx, models.EntityVisitors, "created_at.desc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.VisitorSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SupabaseStore) ListVisitLogs(ctx context.Context) ([]models.VisitLogEntry, error) {
	var rows []visitLogRow
	if err := s.list(ctx, models.EntityVisitLogs, "created_at.asc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.VisitLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SupabaseStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	var rows []locationRow
	if err := s.list(ctx, models.EntityLocations, "created_at.asc,id.asc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.Location, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SupabaseStore) ListFrequentVisitors(ctx context.Context) ([]models.FrequentVisitor, error) {
	var rows []frequentVisitorRow
	if err := s.list(ctx, models.EntityFrequentVisitors, "created_at.desc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.FrequentVisitor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SupabaseStore) LocationIDs(ctx context.Context) ([]string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.get(ctx, "list ids", models.EntityLocations, map[string]string{"select": "id"}, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// DeleteAll issues an unconditional delete. PostgREST refuses a DELETE without
// a filter, so every row is matched with id=not.is.null.
func (s *SupabaseStore) DeleteAll(ctx context.Context, table models.Entity) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return s.delete(ctx, table, "not.is.null")
}

func (s *SupabaseStore) DeleteLocations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + strings.ReplaceAll(id, `"`, `\"`) + `"`
	}
	return s.delete(ctx, models.EntityLocations, "in.("+strings.Join(quoted, ",")+")")
}

func (s *SupabaseStore) InsertVisitors(ctx context.Context, visitors []models.VisitorSession) error {
	if len(visitors) == 0 {
		return nil
	}
	rows := make([]visitorRow, 0, len(visitors))
	for _, v := range visitors {
		rows = append(rows, toVisitorRow(v))
	}
	return s.post(ctx, "insert", models.EntityVisitors, rows, false)
}

func (s *SupabaseStore) InsertVisitLogs(ctx context.Context, logs []models.VisitLogEntry) error {
	if len(logs) == 0 {
		return nil
	}
	rows := make([]visitLogRow, 0, len(logs))
	for _, e := range logs {
		rows = append(rows, toVisitLogRow(e))
	}
	return s.post(ctx, "insert", models.EntityVisitLogs, rows, false)
}

func (s *SupabaseStore) InsertFrequentVisitors(ctx context.Context, visitors []models.FrequentVisitor) error {
	if len(visitors) == 0 {
		return nil
	}
	now := s.now()
	rows := make([]frequentVisitorRow, 0, len(visitors))
	for _, fv := range visitors {
		rows = append(rows, toFrequentVisitorRow(fv, now))
	}
	return s.post(ctx, "insert", models.EntityFrequentVisitors, rows, false)
}

func (s *SupabaseStore) UpsertLocations(ctx context.Context, locations []models.Location) error {
	if len(locations) == 0 {
		return nil
	}
	rows := make([]locationRow, 0, len(locations))
	for _, l := range locations {
		rows = append(rows, toLocationRow(l))
	}
	return s.post(ctx, "upsert", models.EntityLocations, rows, true)
}

func (s *SupabaseStore) list(ctx context.Context, table models.Entity, order string, result any) error {
	return s.get(ctx, "list", table, map[string]string{"select": "*", "order": order}, result)
}

func (s *SupabaseStore) get(ctx context.Context, op string, table models.Entity, params map[string]string, result any) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		Get("/" + string(table))
	return s.check(op, table, resp, err)
}

func (s *SupabaseStore) delete(ctx context.Context, table models.Entity, idFilter string) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParam("id", idFilter).
		Delete("/" + string(table))
	return s.check("delete", table, resp, err)
}

func (s *SupabaseStore) post(ctx context.Context, op string, table models.Entity, rows any, upsert bool) error {
	req := s.httpClient.R().
		SetContext(ctx).
		SetBody(rows)
	if upsert {
		req.SetQueryParam("on_conflict", "id").
			SetHeader("Prefer", "resolution=merge-duplicates,return=minimal")
	} else {
		req.SetHeader("Prefer", "return=minimal")
	}
	resp, err := req.Post("/" + string(table))
	return s.check(op, table, resp, err)
}

func (s *SupabaseStore) check(op string, table models.Entity, resp *resty.Response, err error) error {
	if err != nil {
		s.logger.Warn("request failed", zap.String("op", op), zap.String("table", string(table)), zap.Error(err))
		return &apperr.RemoteError{Op: op, Entity: string(table), Err: err}
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		s.logger.Warn("request rejected",
			zap.String("op", op),
			zap.String("table", string(table)),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", body),
		)
		return &apperr.RemoteError{
			Op:     op,
			Entity: string(table),
			Status: resp.StatusCode(),
			Err:    errors.New(body),
		}
	}
	return nil
}
