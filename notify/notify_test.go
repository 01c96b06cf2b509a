package notify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorgate/apperr"
	"visitorgate/syncer"
)

func TestCenter_LatestReplacesPrevious(t *testing.T) {
	c := NewCenter()
	_, ok := c.Latest()
	assert.False(t, ok)

	first := c.Publish(Notification{Title: "one"})
	second := c.Publish(Notification{Title: "two"})
	assert.Greater(t, second.ID, first.ID)

	got, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, "two", got.Title)

	assert.False(t, c.Clear(first.ID))
	assert.True(t, c.Clear(second.ID))
	_, ok = c.Latest()
	assert.False(t, ok)
}

func TestFromError(t *testing.T) {
	cases := []struct {
		err      error
		title    string
		severity Severity
		retry    bool
	}{
		{apperr.Validation("lastName"), "Missing information", SeverityWarning, false},
		{&apperr.LocationError{Reason: "denied"}, "Location unavailable", SeverityWarning, true},
		{apperr.NotFound("visitor", "x"), "Not found", SeverityWarning, false},
		{&apperr.InvariantViolation{Rule: "r"}, "Not allowed", SeverityError, false},
		{fmt.Errorf("push: %w", &apperr.RemoteError{Op: "push"}), "Working offline", SeverityWarning, true},
		{&apperr.DependencyUnavailable{Name: "sync"}, "Still starting", SeverityError, true},
		{syncer.ErrSyncInFlight, "Sync in progress", SeverityInfo, false},
		{errors.New("boom"), "Unexpected error", SeverityError, false},
	}
	for _, tc := range cases {
		n := FromError(tc.err)
		assert.Equal(t, tc.title, n.Title, tc.err.Error())
		assert.Equal(t, tc.severity, n.Severity, tc.err.Error())
		assert.Equal(t, tc.retry, n.Retry, tc.err.Error())
	}

	assert.Equal(t, []string{"lastName"}, FromError(apperr.Validation("lastName")).Fields)
}

func TestReport(t *testing.T) {
	c := NewCenter()
	c.Report(nil)
	_, ok := c.Latest()
	assert.False(t, ok)

	c.Report(&apperr.RemoteError{Op: "push", Entity: "visitors"})
	got, ok := c.Latest()
	require.True(t, ok)
	assert.True(t, got.Retry)
}
