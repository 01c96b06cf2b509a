package geo

import (
	"context"
	"fmt"
	"time"

	"visitorgate/models"
)

// FixErrorCode mirrors the platform geolocation failure codes.
type FixErrorCode string

const (
	PermissionDenied    FixErrorCode = "PERMISSION_DENIED"
	PositionUnavailable FixErrorCode = "POSITION_UNAVAILABLE"
	Timeout             FixErrorCode = "TIMEOUT"
)

// Valid reports whether c is a known code.
func (c FixErrorCode) Valid() bool {
	switch c {
	case PermissionDenied, PositionUnavailable, Timeout:
		return true
	}
	return false
}

// FixError is returned by a Provider that could not produce a fix.
type FixError struct {
	Code FixErrorCode
}

func (e *FixError) Error() string {
	switch e.Code {
	case PermissionDenied:
		return "location permission denied"
	case Timeout:
		return "location request timed out"
	default:
		return "position unavailable"
	}
}

// FixOptions tunes a single position request.
type FixOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

func (o FixOptions) String() string {
	return fmt.Sprintf("highAccuracy=%t timeout=%v maxAge=%v", o.HighAccuracy, o.Timeout, o.MaxAge)
}

// Provider supplies one best-effort position reading.
type Provider interface {
	CurrentFix(ctx context.Context, opts FixOptions) (models.Fix, error)
}
