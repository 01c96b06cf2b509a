package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorgate/apperr"
	"visitorgate/models"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(Defaults(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 2, r.Len())
	return r
}

func TestDefaults(t *testing.T) {
	locs := Defaults(time.Now())
	require.Len(t, locs, 2)
	assert.Equal(t, models.CategoryDormitory, locs[0].Category)
	assert.Equal(t, models.CategoryFactory, locs[1].Category)
	assert.NotEqual(t, locs[0].ID, locs[1].ID)
	assert.True(t, locs[0].CreatedAt.Before(locs[1].CreatedAt))
	assert.Less(t, locs[0].ID, locs[1].ID)
	for _, l := range locs {
		assert.NoError(t, l.Validate())
	}
}

func TestAdd_AppendsInOrder(t *testing.T) {
	r := setupRegistry(t)

	loc, err := r.Add("  Dorm B ", models.CategoryDormitory, 37.5, 127.0, 0.25)
	require.NoError(t, err)
	assert.NotEmpty(t, loc.ID)
	assert.Equal(t, "Dorm B", loc.Name)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, loc.ID, list[2].ID)
	assert.Equal(t, "Dormitory 1", list[0].Name)
}

func TestAdd_RejectsInvalid(t *testing.T) {
	r := setupRegistry(t)

	cases := []struct {
		name     string
		category models.Category
		lat, lng float64
		radius   float64
	}{
		{"", models.CategoryFactory, 0, 0, 1},
		{"x", "warehouse", 0, 0, 1},
		{"x", models.CategoryFactory, 91, 0, 1},
		{"x", models.CategoryFactory, 0, -181, 1},
		{"x", models.CategoryFactory, 0, 0, 0},
	}
	for _, c := range cases {
		_, err := r.Add(c.name, c.category, c.lat, c.lng, c.radius)
		var ve *apperr.ValidationError
		assert.ErrorAs(t, err, &ve)
	}
	assert.Equal(t, 2, r.Len())
}

func TestUpdate(t *testing.T) {
	r := setupRegistry(t)
	id := r.List()[0].ID

	loc, err := r.Update(id, FieldRadius, "0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, loc.RadiusKm)

	loc, err = r.Update(id, FieldLat, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, loc.Lat)

	loc, err = r.Update(id, FieldName, "Main Dorm")
	require.NoError(t, err)
	assert.Equal(t, "Main Dorm", loc.Name)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, loc, got)
}

func TestUpdate_InvalidLeavesStateUntouched(t *testing.T) {
	r := setupRegistry(t)
	before := r.List()
	id := before[0].ID

	_, err := r.Update(id, FieldRadius, -1.0)
	assert.Error(t, err)
	_, err = r.Update(id, FieldLng, "east")
	assert.Error(t, err)
	_, err = r.Update(id, "color", "red")
	assert.Error(t, err)

	assert.Equal(t, before, r.List())

	_, err = r.Update("missing", FieldName, "x")
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRemove_LastLocationIsRejected(t *testing.T) {
	r := setupRegistry(t)
	list := r.List()

	removed, err := r.Remove(list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, list[0].ID, removed.ID)
	assert.Equal(t, []models.Location{list[1]}, r.List())

	_, err = r.Remove(list[1].ID)
	var iv *apperr.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, []models.Location{list[1]}, r.List())
}

func TestSetPosition(t *testing.T) {
	r := setupRegistry(t)
	id := r.List()[1].ID

	loc, err := r.SetPosition(id, models.Fix{Lat: 1.5, Lng: 2.5})
	require.NoError(t, err)
	assert.Equal(t, 1.5, loc.Lat)
	assert.Equal(t, 2.5, loc.Lng)
}

func TestReplace(t *testing.T) {
	r := setupRegistry(t)

	err := r.Replace(nil)
	var iv *apperr.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 2, r.Len())

	next := []models.Location{{ID: "a", Name: "A", Category: models.CategoryFactory, RadiusKm: 1}}
	require.NoError(t, r.Replace(next))
	assert.Equal(t, next, r.List())
}
