package db

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Prefer string
	APIKey string
	Auth   string
	Body   []byte
}

type fakePostgREST struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Prefer: r.Header.Get("Prefer"),
		APIKey: r.Header.Get("apikey"),
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	status, response := f.status, f.response
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if response == "" {
		response = "[]"
	}
	io.WriteString(w, response)
}

func (f *fakePostgREST) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func setupSupabase(t *testing.T) (*SupabaseStore, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store := NewSupabaseStore(SupabaseConfig{URL: srv.URL + "/", APIKey: "anon-key"}, zap.NewNop())
	return store, fake
}

func TestSupabase_ListLocationsMapsColumns(t *testing.T) {
	store, fake := setupSupabase(t)
	fake.response = `[{"id":"loc-1","name":"Dorm A","category":"dormitory","latitude":37.5665,
		"longitude":126.978,"radius":0.1,"created_at":"2026-01-02T03:04:05Z","updated_at":"2026-01-02T03:04:05Z"}]`

	locs, err := store.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "Dorm A", locs[0].Name)
	assert.Equal(t, models.CategoryDormitory, locs[0].Category)
	assert.Equal(t, 37.5665, locs[0].Lat)
	assert.Equal(t, 0.1, locs[0].RadiusKm)

	req := fake.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/locations", req.Path)
	assert.Equal(t, "*", req.Query["select"])
	assert.Equal(t, "created_at.asc,id.asc", req.Query["order"])
	assert.Equal(t, "anon-key", req.APIKey)
	assert.Equal(t, "Bearer anon-key", req.Auth)
}

func TestSupabase_ListVisitLogsFallsBackToVisitorName(t *testing.T) {
	store, fake := setupSupabase(t)
	fake.response = `[{"id":"l1","visitor_name":"Kim Min","category":"dormitory","action":"checkin",
		"location_name":null,"checkin_time":"2026-01-02T03:04:05Z","created_at":"2026-01-02T03:04:05Z"}]`

	logs, err := store.ListVisitLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Kim Min", logs[0].FullName)
	assert.Equal(t, models.ActionCheckin, logs[0].Action)
	assert.Empty(t, logs[0].LocationName)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), logs[0].Timestamp.UTC())
}

func TestSupabase_DeleteAll(t *testing.T) {
	store, fake := setupSupabase(t)

	require.NoError(t, store.DeleteAll(context.Background(), models.EntityVisitors))
	req := fake.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/rest/v1/visitors", req.Path)
	assert.Equal(t, "not.is.null", req.Query["id"])

	assert.Error(t, store.DeleteAll(context.Background(), "users"))
}

func TestSupabase_DeleteLocations(t *testing.T) {
	store, fake := setupSupabase(t)

	require.NoError(t, store.DeleteLocations(context.Background(), nil))
	assert.Empty(t, fake.requests)

	require.NoError(t, store.DeleteLocations(context.Background(), []string{"a", "b"}))
	assert.Equal(t, `in.("a","b")`, fake.last().Query["id"])
}

func TestSupabase_InsertVisitorsUsesSnakeCase(t *testing.T) {
	store, fake := setupSupabase(t)
	fake.status = http.StatusCreated
	fake.response = " "

	at := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	err := store.InsertVisitors(context.Background(), []models.VisitorSession{{
		ID: "v1", Category: models.CategoryFactory, FullName: "Park Jae", LastName: "Park", FirstName: "Jae",
		Company: "Acme", Phone: "010", Purpose: models.PurposeMeeting, CheckinTime: at,
	}})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "return=minimal", req.Prefer)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Park Jae", rows[0]["full_name"])
	assert.Equal(t, "meeting", rows[0]["purpose"])
	assert.Nil(t, rows[0]["location_name"])
	assert.Nil(t, rows[0]["checkout_time"])
}

func TestSupabase_UpsertLocations(t *testing.T) {
	store, fake := setupSupabase(t)
	fake.status = http.StatusCreated
	fake.response = " "

	err := store.UpsertLocations(context.Background(), []models.Location{{
		ID: "loc-1", Name: "Plant", Category: models.CategoryFactory, Lat: 1, Lng: 2, RadiusKm: 0.3,
	}})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, "id", req.Query["on_conflict"])
	assert.Contains(t, req.Prefer, "resolution=merge-duplicates")

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &rows))
	assert.Equal(t, 1.0, rows[0]["latitude"])
	assert.Equal(t, 0.3, rows[0]["radius"])
}

func TestSupabase_ErrorStatusIsRemoteError(t *testing.T) {
	store, fake := setupSupabase(t)
	fake.status = http.StatusUnauthorized
	fake.response = `{"message":"JWT expired"}`

	_, err := store.ListVisitors(context.Background())
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "visitors", re.Entity)
	assert.Contains(t, err.Error(), "JWT expired")

	assert.Error(t, store.Ping(context.Background()))
}

func TestSupabase_Unreachable(t *testing.T) {
	store := NewSupabaseStore(SupabaseConfig{URL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second}, zap.NewNop())
	err := store.Ping(context.Background())
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.Status)
}
