package telemetry

import (
	"errors"
	"fmt"
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/f1replay/telemetry-service/internal/models"
)

var (
	// ErrInvalidRate is returned for a non-positive or non-finite sample rate
	ErrInvalidRate = errors.New("sample rate must be a positive finite number")

	// ErrUnsortedSamples is returned when samples are not ordered by time
	ErrUnsortedSamples = errors.New("samples are not ordered by session time")
)

// tickEpsilon absorbs float error when the last tick lands exactly on t1
const tickEpsilon = 1e-9

// Resample converts a lap's irregular telemetry stream into one sample per
// 1/rateHz seconds, from the first sample time up to and including the last.
// Each tick takes the observed sample nearest in time (ties go to the earliest
// index); no values are interpolated. Selected samples without a track
// position are dropped, so the result may be shorter than the tick count.
//
// samples must be ordered by SessionTime; unordered input is rejected.
func Resample(samples []models.TelemetrySample, rateHz float64) ([]models.TelemetrySample, error) {
	if rateHz <= 0 || math.IsNaN(rateHz) || math.IsInf(rateHz, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rateHz)
	}
	if len(samples) == 0 {
		return []models.TelemetrySample{}, nil
	}
	if !slices.IsSortedFunc(samples, compareTime) {
		return nil, ErrUnsortedSamples
	}

	t0 := samples[0].SessionTime
	t1 := samples[len(samples)-1].SessionTime
	interval := 1 / rateHz

	// a single outlier timestamp must not size the buffer
	out := make([]models.TelemetrySample, 0, min(int((t1-t0)*rateHz)+1, len(samples)))
	for k := 0; ; k++ {
		t := t0 + float64(k)*interval
		if t > t1+tickEpsilon {
			break
		}
		s := samples[nearestIndex(samples, t)]
		if !s.HasPosition() {
			continue
		}
		out = append(out, s)
	}

	return out, nil
}

func compareTime(a, b models.TelemetrySample) int {
	return cmp.Compare(a.SessionTime, b.SessionTime)
}

// nearestIndex returns the index of the sample whose time is closest to t.
// On equal distance, or among equal timestamps, the earliest index wins.
func nearestIndex(samples []models.TelemetrySample, t float64) int {
	// first sample at or after t
	j := sort.Search(len(samples), func(i int) bool {
		return samples[i].SessionTime >= t
	})

	switch {
	case j == 0:
		return 0
	case j == len(samples):
		return firstAtTime(samples, samples[j-1].SessionTime)
	}

	before := t - samples[j-1].SessionTime
	after := samples[j].SessionTime - t
	if before <= after {
		return firstAtTime(samples, samples[j-1].SessionTime)
	}
	return j
}

// firstAtTime returns the first index whose time equals ts.
func firstAtTime(samples []models.TelemetrySample, ts float64) int {
	return sort.Search(len(samples), func(i int) bool {
		return samples[i].SessionTime >= ts
	})
}
