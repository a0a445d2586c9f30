package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/f1replay/telemetry-service/internal/models"
)

const (
	// OutlineStride keeps every n-th positioned sample of the reference lap
	OutlineStride = 10

	// OverviewStride is the lap step of the full-session overview
	OverviewStride = 5

	// MaxConsecutiveFailures stops assembly once this many lap fetches in a
	// row have failed, so an unavailable data source fails fast
	MaxConsecutiveFailures = 5

	// outlineLap is the lap the track outline is taken from
	outlineLap = 1
)

// SessionData is the part of a loaded session the assembler reads from
type SessionData interface {
	// Laps returns the session's laps table
	Laps() []models.Lap

	// LapTelemetry fetches the fine telemetry stream of a single lap. Errors
	// wrapping ErrTelemetryMissing mean the lap has no data.
	LapTelemetry(ctx context.Context, lap models.Lap) ([]models.TelemetrySample, error)
}

// Assembly is the result of assembling a chunk
type Assembly struct {
	Outline []models.TrackPoint
	Frames  []models.TelemetryFrame
}

// Assembler builds replay frames from a session's laps and telemetry
type Assembler struct {
	rateHz      float64
	maxFailures int
	logger      *zap.Logger
}

// NewAssembler creates an assembler resampling at rateHz
func NewAssembler(rateHz float64, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		rateHz:      rateHz,
		maxFailures: MaxConsecutiveFailures,
		logger:      logger,
	}
}

// failureRun counts consecutive lap fetch failures. Missing laps do not
// count and do not reset the run.
type failureRun struct {
	limit int
	count int
}

// record notes the outcome of one lap fetch and reports whether the limit
// has been reached
func (f *failureRun) record(err error) error {
	switch {
	case err == nil:
		f.count = 0
	case errors.Is(err, ErrTelemetryMissing):
	default:
		f.count++
		if f.limit > 0 && f.count >= f.limit {
			return fmt.Errorf("%w: last error: %w", ErrTooManyFailures, err)
		}
	}
	return nil
}

// TotalLaps returns the highest lap number in the laps table
func TotalLaps(laps []models.Lap) int {
	if len(laps) == 0 {
		return 0
	}
	return lo.MaxBy(laps, func(a, b models.Lap) bool {
		return a.LapNumber > b.LapNumber
	}).LapNumber
}

// DriverOrder returns driver codes in order of first appearance in laps
func DriverOrder(laps []models.Lap) []string {
	return lo.Uniq(lo.Map(laps, func(l models.Lap, _ int) string {
		return l.Driver
	}))
}

// lapIndex maps lap number -> driver -> lap record
type lapIndex map[int]map[string]models.Lap

func indexLaps(laps []models.Lap) lapIndex {
	idx := make(lapIndex)
	for _, l := range laps {
		byDriver, ok := idx[l.LapNumber]
		if !ok {
			byDriver = make(map[string]models.Lap)
			idx[l.LapNumber] = byDriver
		}
		if _, dup := byDriver[l.Driver]; !dup {
			byDriver[l.Driver] = l
		}
	}
	return idx
}

func (idx lapIndex) lookup(lapNumber int, driver string) (models.Lap, bool) {
	l, ok := idx[lapNumber][driver]
	return l, ok
}

// Assemble resamples every driver's telemetry for laps startLap..endLap.
// Frames are grouped by lap, then by driver order, then by time. Laps a driver
// did not complete and laps whose telemetry cannot be fetched contribute no
// frames, but MaxConsecutiveFailures failed fetches in a row abort with
// ErrTooManyFailures. The outline is only extracted when includeOutline is set.
func (a *Assembler) Assemble(ctx context.Context, session SessionData, startLap, endLap int, includeOutline bool) (Assembly, error) {
	laps := session.Laps()
	drivers := DriverOrder(laps)
	idx := indexLaps(laps)

	result := Assembly{
		Outline: []models.TrackPoint{},
		Frames:  []models.TelemetryFrame{},
	}

	if includeOutline {
		result.Outline = a.Outline(ctx, session)
	}

	failures := failureRun{limit: a.maxFailures}
	for lapNumber := startLap; lapNumber <= endLap; lapNumber++ {
		for _, driver := range drivers {
			if err := ctx.Err(); err != nil {
				return Assembly{}, err
			}

			lap, ok := idx.lookup(lapNumber, driver)
			if !ok {
				continue
			}

			frames, err := a.lapFrames(ctx, session, lap)
			if ctx.Err() != nil {
				return Assembly{}, ctx.Err()
			}
			if stop := failures.record(err); stop != nil {
				return Assembly{}, stop
			}
			if err != nil {
				a.logger.Warn("skipping lap telemetry",
					zap.String("driver", driver),
					zap.Int("lap", lapNumber),
					zap.Error(err))
				continue
			}
			result.Frames = append(result.Frames, frames...)
		}
	}

	return result, nil
}

// lapFrames resamples one lap and converts the retained samples into frames.
func (a *Assembler) lapFrames(ctx context.Context, session SessionData, lap models.Lap) ([]models.TelemetryFrame, error) {
	samples, err := session.LapTelemetry(ctx, lap)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	resampled, err := Resample(samples, a.rateHz)
	if err != nil {
		return nil, err
	}

	lapStart := samples[0].SessionTime
	if lap.LapStartTime != nil {
		lapStart = *lap.LapStartTime
	}

	frames := make([]models.TelemetryFrame, 0, len(resampled))
	for _, s := range resampled {
		frames = append(frames, models.TelemetryFrame{
			Lap:            lap.LapNumber,
			Driver:         lap.Driver,
			TimeInLap:      s.SessionTime - lapStart,
			CumulativeTime: s.SessionTime,
			X:              *s.X,
			Y:              *s.Y,
			Position:       lap.Position,
			Compound:       lap.Compound,
			Speed:          s.Speed,
		})
	}
	return frames, nil
}

// Outline derives the track outline from lap 1 of the first driver in the
// laps table. Failures yield an empty outline.
func (a *Assembler) Outline(ctx context.Context, session SessionData) []models.TrackPoint {
	outline, err := a.outline(ctx, session)
	if err != nil {
		a.logger.Warn("track outline unavailable", zap.Error(err))
		return []models.TrackPoint{}
	}
	return outline
}

func (a *Assembler) outline(ctx context.Context, session SessionData) ([]models.TrackPoint, error) {
	laps := session.Laps()
	drivers := DriverOrder(laps)
	if len(drivers) == 0 {
		return nil, ErrNoLapData
	}

	reference := drivers[0]
	lap, ok := indexLaps(laps).lookup(outlineLap, reference)
	if !ok {
		return nil, fmt.Errorf("driver %s has no lap %d", reference, outlineLap)
	}

	samples, err := session.LapTelemetry(ctx, lap)
	if err != nil {
		return nil, fmt.Errorf("reference lap telemetry: %w", err)
	}

	positioned := lo.Filter(samples, func(s models.TelemetrySample, _ int) bool {
		return s.HasPosition()
	})

	outline := make([]models.TrackPoint, 0, len(positioned)/OutlineStride+1)
	for i := 0; i < len(positioned); i += OutlineStride {
		outline = append(outline, models.TrackPoint{X: *positioned[i].X, Y: *positioned[i].Y})
	}
	return outline, nil
}

// Overview samples every stride-th lap (starting at lap 1) and records each
// driver's position at the middle of the lap. Fetch failures are handled as
// in Assemble.
func (a *Assembler) Overview(ctx context.Context, session SessionData, stride int) ([]models.OverviewLap, int, error) {
	if stride <= 0 {
		stride = OverviewStride
	}

	laps := session.Laps()
	drivers := DriverOrder(laps)
	idx := indexLaps(laps)
	totalLaps := TotalLaps(laps)

	overview := []models.OverviewLap{}
	totalFrames := 0
	failures := failureRun{limit: a.maxFailures}
	for lapNumber := 1; lapNumber <= totalLaps; lapNumber += stride {
		positions := make(map[string]models.DriverPosition)
		for _, driver := range drivers {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}

			lap, ok := idx.lookup(lapNumber, driver)
			if !ok {
				continue
			}

			samples, err := session.LapTelemetry(ctx, lap)
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if stop := failures.record(err); stop != nil {
				return nil, 0, stop
			}
			if err != nil {
				a.logger.Warn("skipping lap telemetry",
					zap.String("driver", driver),
					zap.Int("lap", lapNumber),
					zap.Error(err))
				continue
			}

			mid, ok := midLapSample(samples)
			if !ok {
				continue
			}
			positions[driver] = models.DriverPosition{
				X:        *mid.X,
				Y:        *mid.Y,
				Position: lap.Position,
				Compound: lap.Compound,
			}
		}

		if len(positions) == 0 {
			continue
		}
		overview = append(overview, models.OverviewLap{Lap: lapNumber, Positions: positions})
		totalFrames++
	}

	return overview, totalFrames, nil
}

// midLapSample returns the positioned sample closest to the middle of the
// stream, searching outwards from the centre index.
func midLapSample(samples []models.TelemetrySample) (models.TelemetrySample, bool) {
	mid := len(samples) / 2
	for offset := 0; offset <= mid; offset++ {
		if i := mid - offset; i >= 0 && samples[i].HasPosition() {
			return samples[i], true
		}
		if i := mid + offset; i < len(samples) && samples[i].HasPosition() {
			return samples[i], true
		}
	}
	return models.TelemetrySample{}, false
}
