package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/f1replay/telemetry-service/internal/models"
)

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	LoadSessionFunc func(ctx context.Context, year int, race RaceID) (Session, error)
	ClearCacheFunc  func(ctx context.Context) error

	// LoadCalls counts LoadSession invocations
	LoadCalls int
}

// NewMockProvider creates a mock provider serving session for every race
func NewMockProvider(session Session) *MockProvider {
	return &MockProvider{
		LoadSessionFunc: func(_ context.Context, _ int, _ RaceID) (Session, error) {
			return session, nil
		},
		ClearCacheFunc: func(_ context.Context) error {
			return nil
		},
	}
}

// LoadSession implements Provider.LoadSession
func (m *MockProvider) LoadSession(ctx context.Context, year int, race RaceID) (Session, error) {
	m.LoadCalls++
	return m.LoadSessionFunc(ctx, year, race)
}

// ClearCache implements Provider.ClearCache
func (m *MockProvider) ClearCache(ctx context.Context) error {
	return m.ClearCacheFunc(ctx)
}

// MockSession is an in-memory Session for testing
type MockSession struct {
	EventData   models.Event
	ResultsData []models.Result
	LapsData    []models.Lap

	// Telemetry maps "DRIVER/LAP" to the lap's samples
	Telemetry map[string][]models.TelemetrySample

	// TelemetryErr, when set, is returned for every telemetry fetch
	TelemetryErr error

	// TelemetryDelay delays every telemetry fetch; the context still applies
	TelemetryDelay time.Duration

	Closed bool
}

// TelemetryKey builds the key used by MockSession.Telemetry
func TelemetryKey(driver string, lap int) string {
	return driver + "/" + strconv.Itoa(lap)
}

// Event implements Session.Event
func (m *MockSession) Event() models.Event {
	return m.EventData
}

// Results implements Session.Results
func (m *MockSession) Results() []models.Result {
	return m.ResultsData
}

// Laps implements Session.Laps
func (m *MockSession) Laps() []models.Lap {
	return m.LapsData
}

// LapTelemetry implements Session.LapTelemetry
func (m *MockSession) LapTelemetry(ctx context.Context, lap models.Lap) ([]models.TelemetrySample, error) {
	if m.TelemetryDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.TelemetryDelay):
		}
	}
	if m.TelemetryErr != nil {
		return nil, m.TelemetryErr
	}
	samples, ok := m.Telemetry[TelemetryKey(lap.Driver, lap.LapNumber)]
	if !ok {
		return nil, ErrTelemetryUnavailable
	}
	return samples, nil
}

// Close implements Session.Close
func (m *MockSession) Close() error {
	m.Closed = true
	return nil
}
