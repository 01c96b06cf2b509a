package visitors

import (
	"sort"
	"strings"
	"time"

	"visitorgate/apperr"
	"visitorgate/models"
)

// TimeOfDay is a wall-clock bucket of the event timestamp.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"   // 06-12
	Afternoon TimeOfDay = "afternoon" // 12-18
	Evening   TimeOfDay = "evening"   // 18-24
	Night     TimeOfDay = "night"     // 00-06
)

func (b TimeOfDay) contains(hour int) bool {
	switch b {
	case Morning:
		return hour >= 6 && hour < 12
	case Afternoon:
		return hour >= 12 && hour < 18
	case Evening:
		return hour >= 18
	case Night:
		return hour < 6
	}
	return false
}

// SortKey orders filtered log entries.
type SortKey string

const (
	SortNewest   SortKey = "newest"
	SortOldest   SortKey = "oldest"
	SortName     SortKey = "name"
	SortLocation SortKey = "location"
)

// LogFilter selects visit log entries. Zero values mean no restriction; all
// set criteria must match.
type LogFilter struct {
	Category     models.Category
	VisitorName  string
	LocationName string
	Purpose      models.Purpose
	// From and To bound the event date, inclusive on whole days.
	From      time.Time
	To        time.Time
	TimeOfDay TimeOfDay
	Sort      SortKey
	Limit     int
}

// Validate rejects unknown enum values.
func (f LogFilter) Validate() error {
	var fields []string
	if f.Category != "" && !f.Category.Valid() {
		fields = append(fields, "category")
	}
	if f.Purpose != "" && !f.Purpose.Valid() {
		fields = append(fields, "purpose")
	}
	switch f.TimeOfDay {
	case "", Morning, Afternoon, Evening, Night:
	default:
		fields = append(fields, "timeOfDay")
	}
	switch f.Sort {
	case "", SortNewest, SortOldest, SortName, SortLocation:
	default:
		fields = append(fields, "sort")
	}
	if f.Limit < 0 {
		fields = append(fields, "limit")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		fields = append(fields, "to")
	}
	return apperr.Validation(fields...)
}

// FilterLogs returns the matching log entries, newest first unless f.Sort says
// otherwise.
func (s *Store) FilterLogs(f LogFilter) ([]models.VisitLogEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var from, until time.Time
	if !f.From.IsZero() {
		from = startOfDay(f.From, s.tz)
	}
	if !f.To.IsZero() {
		until = startOfDay(f.To, s.tz).AddDate(0, 0, 1)
	}
	name := strings.ToLower(strings.TrimSpace(f.VisitorName))
	location := strings.ToLower(strings.TrimSpace(f.LocationName))

	var out []models.VisitLogEntry
	for _, e := range s.Logs() {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Purpose != "" && e.Purpose != f.Purpose {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(e.FullName), name) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(e.LocationName), location) {
			continue
		}
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !until.IsZero() && !e.Timestamp.Before(until) {
			continue
		}
		if f.TimeOfDay != "" && !f.TimeOfDay.contains(e.Timestamp.In(s.tz).Hour()) {
			continue
		}
		out = append(out, e)
	}

	sortLogs(out, f.Sort)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortLogs(entries []models.VisitLogEntry, key SortKey) {
	var less func(a, b models.VisitLogEntry) bool
	switch key {
	case SortOldest:
		less = func(a, b models.VisitLogEntry) bool { return a.Timestamp.Before(b.Timestamp) }
	case SortName:
		less = func(a, b models.VisitLogEntry) bool { return a.FullName < b.FullName }
	case SortLocation:
		less = func(a, b models.VisitLogEntry) bool { return a.LocationName < b.LocationName }
	default:
		less = func(a, b models.VisitLogEntry) bool { return a.Timestamp.After(b.Timestamp) }
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
}

func startOfDay(t time.Time, tz *time.Location) time.Time {
	y, m, d := t.In(tz).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tz)
}
