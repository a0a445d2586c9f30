// Package telemetry turns per-lap fine telemetry into evenly sampled replay
// frames delivered in fixed lap-range chunks.
package telemetry

import (
	"errors"
	"fmt"
	"math"

	"github.com/f1replay/telemetry-service/internal/models"
)

// ChunkCount is the number of chunks every session is split into
const ChunkCount = 10

var (
	// ErrInvalidChunkIndex is returned when a chunk index is outside [0, chunkCount)
	ErrInvalidChunkIndex = errors.New("invalid chunk index")

	// ErrNoLapData is returned when a session has no laps
	ErrNoLapData = errors.New("no lap data available")

	// ErrTelemetryMissing marks a lap the data source has no telemetry for.
	// Such laps are skipped without counting as failures.
	ErrTelemetryMissing = errors.New("lap telemetry unavailable")

	// ErrTooManyFailures is returned when lap telemetry fetches keep failing
	ErrTooManyFailures = errors.New("too many consecutive lap telemetry failures")
)

// PlanChunk computes the lap range of chunk chunkIndex when totalLaps laps are
// split into chunkCount contiguous chunks. The last chunk absorbs the rounding
// remainder. When totalLaps < chunkCount some chunks are empty (StartLap > EndLap).
func PlanChunk(totalLaps, chunkIndex, chunkCount int) (models.ChunkPlan, error) {
	if chunkCount <= 0 {
		return models.ChunkPlan{}, fmt.Errorf("chunk count must be positive, got %d", chunkCount)
	}
	if chunkIndex < 0 || chunkIndex >= chunkCount {
		return models.ChunkPlan{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidChunkIndex, chunkIndex, chunkCount)
	}
	if totalLaps < 0 {
		totalLaps = 0
	}

	chunkSize := float64(totalLaps) / float64(chunkCount)
	startLap := int(math.Floor(float64(chunkIndex)*chunkSize)) + 1
	endLap := int(math.Floor(float64(chunkIndex+1) * chunkSize))
	if chunkIndex == chunkCount-1 {
		endLap = totalLaps
	}

	return models.ChunkPlan{
		ChunkNum:    chunkIndex,
		TotalChunks: chunkCount,
		StartLap:    startLap,
		EndLap:      endLap,
	}, nil
}
