// Package models contains data models for the telemetry service.
package models

// Event describes the race weekend a session belongs to
type Event struct {
	// Informal event name, e.g. "Monaco Grand Prix"
	Name string `json:"name"`

	// Official event name including sponsor
	OfficialName string `json:"official_name,omitempty"`

	// Round number within the season
	Round int `json:"round"`

	// Country the event takes place in
	Country string `json:"country,omitempty"`

	// Locality of the circuit
	Location string `json:"location,omitempty"`

	// Event date as reported upstream (ISO 8601)
	Date string `json:"date,omitempty"`
}

// Result is one row of a session's classification table
type Result struct {
	Abbreviation string `json:"abbreviation"`
	DriverNumber string `json:"driver_number,omitempty"`
	TeamName     string `json:"team_name,omitempty"`
	Position     *int   `json:"position"`
	GridPosition *int   `json:"grid_position"`
	Status       string `json:"status,omitempty"`
}

// Lap is one circuit traversal by one driver
type Lap struct {
	// Three letter driver code
	Driver string `json:"driver"`

	// 1-based lap number, increasing per driver
	LapNumber int `json:"lap_number"`

	// Session time in seconds at which the lap started
	LapStartTime *float64 `json:"lap_start_time"`

	// Tyre compound, e.g. "SOFT"
	Compound *string `json:"compound"`

	// Classification position at the end of the lap
	Position *int `json:"position"`
}

// TelemetrySample is a single point of a lap's fine telemetry stream
type TelemetrySample struct {
	// Elapsed session time in seconds
	SessionTime float64 `json:"session_time"`

	// Track position; either coordinate may be missing upstream
	X *float64 `json:"x"`
	Y *float64 `json:"y"`

	// Instantaneous speed in km/h
	Speed *float64 `json:"speed"`
}

// HasPosition reports whether both coordinates are present
func (s TelemetrySample) HasPosition() bool {
	return s.X != nil && s.Y != nil
}

// TrackPoint is a vertex of the track outline polyline
type TrackPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
