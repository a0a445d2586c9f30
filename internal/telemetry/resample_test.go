package telemetry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f1replay/telemetry-service/internal/models"
)

func ptr[T any](v T) *T {
	return &v
}

func sample(ts, x, y float64) models.TelemetrySample {
	return models.TelemetrySample{SessionTime: ts, X: ptr(x), Y: ptr(y), Speed: ptr(200.0)}
}

func times(samples []models.TelemetrySample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.SessionTime
	}
	return out
}

func TestResample_NearestNeighbour(t *testing.T) {
	stream := []models.TelemetrySample{
		sample(100.0, 0, 0),
		sample(100.3, 1, 1),
		sample(100.45, 2, 2),
		sample(101.2, 3, 3),
		sample(101.9, 4, 4),
		sample(102.0, 5, 5),
	}

	got, err := Resample(stream, 2)
	require.NoError(t, err)

	// ticks at 100.0, 100.5, 101.0, 101.5, 102.0
	want := []float64{100.0, 100.45, 101.2, 101.2, 102.0}
	if diff := cmp.Diff(want, times(got)); diff != "" {
		t.Errorf("Resample() times mismatch (-want +got):\n%s", diff)
	}
}

func TestResample_TiesGoToEarliestIndex(t *testing.T) {
	stream := []models.TelemetrySample{
		sample(0.0, 0, 0),
		sample(1.0, 1, 1),
		sample(1.0, 9, 9),
		sample(2.0, 2, 2),
	}

	// tick at 0.5 is equidistant from 0.0 and 1.0; tick at 1.0 has two exact matches
	got, err := Resample(stream, 2)
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, 0.0, *got[1].X)
	assert.Equal(t, 1.0, *got[2].X)
	// tick at 1.5 is equidistant from the duplicate 1.0 pair and 2.0
	assert.Equal(t, 1.0, *got[3].X)
	assert.Equal(t, 2.0, *got[4].X)
}

func TestResample_IncludesLastTick(t *testing.T) {
	stream := []models.TelemetrySample{
		sample(10.0, 0, 0),
		sample(10.7, 1, 1),
		sample(11.0, 2, 2),
	}

	got, err := Resample(stream, 10)
	require.NoError(t, err)
	assert.Len(t, got, 11)
	assert.Equal(t, 11.0, got[len(got)-1].SessionTime)
}

func TestResample_DropsSamplesWithoutPosition(t *testing.T) {
	stream := []models.TelemetrySample{
		sample(0, 0, 0),
		{SessionTime: 1, X: ptr(1.0)},
		{SessionTime: 2, Y: ptr(2.0)},
		sample(3, 3, 3),
	}

	got, err := Resample(stream, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, times(got))
}

func TestResample_AllPositionsMissing(t *testing.T) {
	stream := []models.TelemetrySample{
		{SessionTime: 0},
		{SessionTime: 0.5, Speed: ptr(100.0)},
		{SessionTime: 1},
	}

	got, err := Resample(stream, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResample_Degenerate(t *testing.T) {
	got, err := Resample(nil, 4)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Resample([]models.TelemetrySample{sample(5, 1, 2)}, 4)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = Resample([]models.TelemetrySample{{SessionTime: 5}}, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResample_Deterministic(t *testing.T) {
	stream := make([]models.TelemetrySample, 0, 500)
	ts := 3600.0
	for i := 0; i < 500; i++ {
		// uneven spacing between 0.05s and 0.3s
		ts += 0.05 + 0.25*math.Abs(math.Sin(float64(i)))
		stream = append(stream, sample(ts, math.Cos(ts), math.Sin(ts)))
	}

	first, err := Resample(stream, 4)
	require.NoError(t, err)
	second, err := Resample(stream, 4)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Resample() not deterministic (-first +second):\n%s", diff)
	}
}

func TestResample_InvalidRate(t *testing.T) {
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Resample([]models.TelemetrySample{sample(0, 0, 0)}, rate)
		if !errors.Is(err, ErrInvalidRate) {
			t.Errorf("rate %v: expected ErrInvalidRate, got %v", rate, err)
		}
	}
}

func TestResample_RejectsUnorderedSamples(t *testing.T) {
	tests := []struct {
		name   string
		stream []models.TelemetrySample
	}{
		{name: "last before first", stream: []models.TelemetrySample{sample(10, 0, 0), sample(2, 1, 1)}},
		{name: "out of order in the middle", stream: []models.TelemetrySample{sample(0, 0, 0), sample(3, 1, 1), sample(1, 2, 2), sample(4, 3, 3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []models.TelemetrySample
			var err error
			require.NotPanics(t, func() {
				got, err = Resample(tt.stream, 4)
			})
			assert.ErrorIs(t, err, ErrUnsortedSamples)
			assert.Nil(t, got)
		})
	}
}

func TestResample_OutlierTimestamp(t *testing.T) {
	// a bogus final timestamp an hour late still resamples from the real data
	stream := []models.TelemetrySample{sample(0, 0, 0), sample(0.5, 1, 1), sample(3600, 2, 2)}

	got, err := Resample(stream, 1)
	require.NoError(t, err)
	assert.Len(t, got, 3601)
	assert.Equal(t, 0.5, got[1].SessionTime)
	assert.Equal(t, 3600.0, got[len(got)-1].SessionTime)
}
