package db

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitorgate/models"
)

// Runs only against the Firestore emulator, e.g.
// FIRESTORE_EMULATOR_HOST=localhost:8080 go test ./db/...
func setupFirestore(t *testing.T) *FirestoreStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	store, err := NewFirestoreStore(ctx, "visitorgate-test", "", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for _, e := range models.Entities {
		require.NoError(t, store.DeleteAll(ctx, e))
	}
	return store
}

func TestFirestore_LocationsDiffAndUpsert(t *testing.T) {
	store := setupFirestore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	locs := []models.Location{
		{ID: "a", Name: "A", Category: models.CategoryDormitory, Lat: 1, Lng: 2, RadiusKm: 0.1, CreatedAt: now},
		{ID: "b", Name: "B", Category: models.CategoryFactory, Lat: 3, Lng: 4, RadiusKm: 0.2, CreatedAt: now.Add(time.Second)},
	}
	require.NoError(t, store.UpsertLocations(ctx, locs))

	ids, err := store.LocationIDs(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.DeleteLocations(ctx, []string{"a"}))
	got, err := store.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, 0.2, got[0].RadiusKm)
}

func TestFirestore_ReplaceAllVisitors(t *testing.T) {
	store := setupFirestore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.InsertVisitors(ctx, []models.VisitorSession{
		{ID: "v1", Category: models.CategoryDormitory, FullName: "Kim Min", LastName: "Kim", FirstName: "Min", CheckinTime: at},
	}))
	require.NoError(t, store.DeleteAll(ctx, models.EntityVisitors))
	require.NoError(t, store.InsertVisitors(ctx, []models.VisitorSession{
		{ID: "v2", Category: models.CategoryDormitory, FullName: "Lee Ana", LastName: "Lee", FirstName: "Ana", CheckinTime: at},
	}))

	visitors, err := store.ListVisitors(ctx)
	require.NoError(t, err)
	require.Len(t, visitors, 1)
	assert.Equal(t, "v2", visitors[0].ID)
	assert.True(t, visitors[0].CheckinTime.Equal(at))
}
