// Package registry holds the ordered set of registered sites.
package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitorgate/apperr"
	"visitorgate/models"
)

// Field names an editable Location attribute.
type Field string

const (
	FieldName     Field = "name"
	FieldCategory Field = "category"
	FieldLat      Field = "lat"
	FieldLng      Field = "lng"
	FieldRadius   Field = "radius"
)

// Registry is the ordered collection of locations. Order is insertion order
// and never changes except through Replace.
type Registry struct {
	mu        sync.RWMutex
	locations []models.Location
	now       func() time.Time
}

// New creates a Registry holding initial, in order.
func New(initial []models.Location) *Registry {
	return &Registry{
		locations: append([]models.Location(nil), initial...),
		now:       time.Now,
	}
}

// Defaults returns the two sites a fresh installation starts with. Creation
// times are a millisecond apart so remote stores listing by created_at keep
// this order.
func Defaults(now time.Time) []models.Location {
	later := now.Add(time.Millisecond)
	return []models.Location{
		{
			ID: newID(), Name: "Dormitory 1", Category: models.CategoryDormitory,
			Lat: 37.5665, Lng: 126.9780, RadiusKm: 0.1, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: newID(), Name: "Factory 1", Category: models.CategoryFactory,
			Lat: 37.5512, Lng: 126.9882, RadiusKm: 0.1, CreatedAt: later, UpdatedAt: later,
		},
	}
}

// newID returns a time-ordered id, so sorting by id follows creation order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// List returns a copy of all locations in registry order.
func (r *Registry) List() []models.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Location(nil), r.locations...)
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations)
}

func (r *Registry) Get(id string) (models.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return models.Location{}, apperr.NotFound("location", id)
	}
	return r.locations[i], nil
}

// Add validates and appends a new location with a fresh id.
func (r *Registry) Add(name string, category models.Category, lat, lng, radiusKm float64) (models.Location, error) {
	now := r.now()
	loc := models.Location{
		ID:        newID(),
		Name:      strings.TrimSpace(name),
		Category:  category,
		Lat:       lat,
		Lng:       lng,
		RadiusKm:  radiusKm,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := loc.Validate(); err != nil {
		return models.Location{}, apperr.Invalid("%v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, loc)
	return loc, nil
}

// Update sets one field of a location. Numeric fields accept a float64 or a
// decimal string, as sent by form inputs.
func (r *Registry) Update(id string, field Field, value any) (models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return models.Location{}, apperr.NotFound("location", id)
	}
	loc := r.locations[i]

	switch field {
	case FieldName:
		s, ok := value.(string)
		if !ok {
			return models.Location{}, apperr.Invalid("name must be a string")
		}
		loc.Name = strings.TrimSpace(s)
	case FieldCategory:
		s, ok := value.(string)
		if !ok {
			return models.Location{}, apperr.Invalid("category must be a string")
		}
		loc.Category = models.Category(s)
	case FieldLat, FieldLng, FieldRadius:
		f, err := toFloat(value)
		if err != nil {
			return models.Location{}, apperr.Invalid("%s: %v", field, err)
		}
		switch field {
		case FieldLat:
			loc.Lat = f
		case FieldLng:
			loc.Lng = f
		default:
			loc.RadiusKm = f
		}
	default:
		return models.Location{}, apperr.Invalid("unknown location field %q", field)
	}

	if err := loc.Validate(); err != nil {
		return models.Location{}, apperr.Invalid("%v", err)
	}
	loc.UpdatedAt = r.now()
	r.locations[i] = loc
	return loc, nil
}

// SetPosition re-centres a location on fix.
func (r *Registry) SetPosition(id string, fix models.Fix) (models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return models.Location{}, apperr.NotFound("location", id)
	}
	loc := r.locations[i]
	loc.Lat, loc.Lng = fix.Lat, fix.Lng
	if err := loc.Validate(); err != nil {
		return models.Location{}, apperr.Invalid("%v", err)
	}
	loc.UpdatedAt = r.now()
	r.locations[i] = loc
	return loc, nil
}

// Remove deletes a location. The last remaining location cannot be removed.
func (r *Registry) Remove(id string) (models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return models.Location{}, apperr.NotFound("location", id)
	}
	if len(r.locations) == 1 {
		return models.Location{}, &apperr.InvariantViolation{Rule: "at least one location must remain"}
	}
	removed := r.locations[i]
	r.locations = append(r.locations[:i:i], r.locations[i+1:]...)
	return removed, nil
}

// Replace swaps the whole collection, as done after a remote pull. An empty
// replacement is rejected so the registry is never left without a location.
func (r *Registry) Replace(all []models.Location) error {
	if len(all) == 0 {
		return &apperr.InvariantViolation{Rule: "at least one location must remain"}
	}
	for _, loc := range all {
		if err := loc.Validate(); err != nil {
			return apperr.Invalid("location %s: %v", loc.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append([]models.Location(nil), all...)
	return nil
}

func (r *Registry) index(id string) int {
	for i, loc := range r.locations {
		if loc.ID == id {
			return i
		}
	}
	return -1
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}
