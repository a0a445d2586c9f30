// Package provider loads motorsport sessions from the upstream data service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/f1replay/telemetry-service/internal/models"
	"github.com/f1replay/telemetry-service/internal/telemetry"
)

var (
	// ErrLoadFailure wraps any failure to load a session
	ErrLoadFailure = errors.New("failed to load session")

	// ErrTimeout is returned when loading a session exceeds the load timeout
	ErrTimeout = errors.New("session load timed out")

	// ErrSessionNotFound is returned when the data service does not know the session
	ErrSessionNotFound = errors.New("session not found")

	// ErrTelemetryUnavailable is returned when a lap has no telemetry upstream
	ErrTelemetryUnavailable = telemetry.ErrTelemetryMissing

	// ErrTelemetryFetch wraps any other failure to fetch lap telemetry
	ErrTelemetryFetch = errors.New("failed to fetch lap telemetry")

	// ErrSessionClosed is returned when a closed session is used
	ErrSessionClosed = errors.New("session closed")
)

// RaceID identifies a race within a season, either by round or by event name
type RaceID struct {
	Round int
	Name  string
}

// ParseRace interprets a decimal string as a round number and anything else
// as an event name
func ParseRace(s string) (RaceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RaceID{}, errors.New("race identifier is empty")
	}
	if round, err := strconv.Atoi(s); err == nil {
		if round < 1 {
			return RaceID{}, fmt.Errorf("round must be positive, got %d", round)
		}
		return RaceID{Round: round}, nil
	}
	return RaceID{Name: s}, nil
}

// String returns the identifier as used in upstream paths
func (r RaceID) String() string {
	if r.Name != "" {
		return r.Name
	}
	return strconv.Itoa(r.Round)
}

// Provider loads sessions
type Provider interface {
	// LoadSession loads the session of a race. The caller must Close it.
	LoadSession(ctx context.Context, year int, race RaceID) (Session, error)

	// ClearCache drops every cached upstream response
	ClearCache(ctx context.Context) error
}

// Session is a loaded session. It is owned by a single request.
type Session interface {
	Event() models.Event
	Results() []models.Result
	Laps() []models.Lap

	// LapTelemetry fetches the fine telemetry of a lap, ordered by time
	LapTelemetry(ctx context.Context, lap models.Lap) ([]models.TelemetrySample, error)

	// Close releases the session's tables
	Close() error
}
