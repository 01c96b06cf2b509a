package visitors

import (
	"strings"
	"sync"
	"time"

	"visitorgate/apperr"
	"visitorgate/models"
)

// Directory is the frequent visitor list used to pre-fill check-in forms.
// Names are not unique.
type Directory struct {
	mu       sync.RWMutex
	visitors []models.FrequentVisitor
	now      func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{now: time.Now}
}

// Add appends a frequent visitor. Both name parts are required.
func (d *Directory) Add(lastName, firstName string) (models.FrequentVisitor, error) {
	last, first := strings.TrimSpace(lastName), strings.TrimSpace(firstName)
	var fields []string
	if last == "" {
		fields = append(fields, "lastName")
	}
	if first == "" {
		fields = append(fields, "firstName")
	}
	if err := apperr.Validation(fields...); err != nil {
		return models.FrequentVisitor{}, err
	}

	fv := models.FrequentVisitor{
		ID:        newID(),
		Name:      models.FullName(last, first),
		LastName:  last,
		FirstName: first,
		AddedDate: d.now(),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visitors = append(d.visitors, fv)
	return fv, nil
}

func (d *Directory) Remove(id string) (models.FrequentVisitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, fv := range d.visitors {
		if fv.ID == id {
			d.visitors = append(d.visitors[:i:i], d.visitors[i+1:]...)
			return fv, nil
		}
	}
	return models.FrequentVisitor{}, apperr.NotFound("frequent visitor", id)
}

func (d *Directory) Get(id string) (models.FrequentVisitor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, fv := range d.visitors {
		if fv.ID == id {
			return fv, nil
		}
	}
	return models.FrequentVisitor{}, apperr.NotFound("frequent visitor", id)
}

func (d *Directory) List() []models.FrequentVisitor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.FrequentVisitor(nil), d.visitors...)
}

// Replace swaps the whole list, as done after a pull.
func (d *Directory) Replace(all []models.FrequentVisitor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visitors = append([]models.FrequentVisitor(nil), all...)
}

// Prefill copies the name of a frequent visitor into in.
func (d *Directory) Prefill(in CheckinInput) (CheckinInput, error) {
	if in.FrequentVisitorID == "" {
		return in, nil
	}
	fv, err := d.Get(in.FrequentVisitorID)
	if err != nil {
		return in, err
	}
	in.LastName, in.FirstName = fv.LastName, fv.FirstName
	return in, nil
}
