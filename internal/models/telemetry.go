package models

// ChunkPlan is the lap range covered by one chunk of a session
type ChunkPlan struct {
	ChunkNum    int `json:"chunk_num"`
	TotalChunks int `json:"total_chunks"`
	StartLap    int `json:"start_lap"`
	EndLap      int `json:"end_lap"`
}

// Empty reports whether the chunk covers no laps. This happens when a session
// has fewer laps than there are chunks.
func (p ChunkPlan) Empty() bool {
	return p.StartLap > p.EndLap
}

// TelemetryFrame is one resampled car position emitted for replay
type TelemetryFrame struct {
	// Lap number the sample belongs to
	Lap int `json:"lap"`

	// Three letter driver code
	Driver string `json:"driver"`

	// Seconds since the start of the lap
	TimeInLap float64 `json:"time_in_lap"`

	// Session time in seconds; the absolute timeline for playback ordering
	CumulativeTime float64 `json:"cumulative_time"`

	// Track coordinates
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Classification position at lap end
	Position *int `json:"position"`

	// Tyre compound
	Compound *string `json:"compound"`

	// Instantaneous speed in km/h
	Speed *float64 `json:"speed"`
}

// TrackInfo describes the circuit in telemetry responses
type TrackInfo struct {
	Name      string       `json:"name"`
	TotalLaps int          `json:"total_laps"`
	Outline   []TrackPoint `json:"outline"`
}

// ChunkResponse is the payload of the chunked telemetry endpoint
type ChunkResponse struct {
	ChunkInfo   ChunkPlan        `json:"chunk_info"`
	Track       TrackInfo        `json:"track"`
	Telemetry   []TelemetryFrame `json:"telemetry"`
	TotalFrames int              `json:"total_frames"`
}

// DriverPosition is a driver's position on a coarse overview lap
type DriverPosition struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Position *int    `json:"position"`
	Compound *string `json:"compound"`
}

// OverviewLap holds the mid-lap position of every driver on one lap
type OverviewLap struct {
	Lap       int                       `json:"lap"`
	Positions map[string]DriverPosition `json:"positions"`
}

// OverviewResponse is the payload of the full-session telemetry endpoint
type OverviewResponse struct {
	Track       TrackInfo     `json:"track"`
	Telemetry   []OverviewLap `json:"telemetry"`
	TotalFrames int           `json:"total_frames"`
}
