package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f1replay/telemetry-service/internal/cache"
	"github.com/f1replay/telemetry-service/internal/config"
	"github.com/f1replay/telemetry-service/internal/models"
	"github.com/f1replay/telemetry-service/internal/provider"
)

func ptr[T any](v T) *T {
	return &v
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:               "3000",
			AllowOrigins:       []string{"*"},
			RateLimitPerMinute: 1000,
		},
		Telemetry: config.TelemetryConfig{SampleRateHz: 1},
	}
}

// testSession is a 20 lap race for two drivers with 30s laps sampled at 2Hz
func testSession() *provider.MockSession {
	s := &provider.MockSession{
		EventData: models.Event{Name: "Italian Grand Prix", Round: 16},
		Telemetry: make(map[string][]models.TelemetrySample),
	}
	for lap := 1; lap <= 20; lap++ {
		for pos, driver := range []string{"LEC", "PIA"} {
			start := float64(lap-1) * 30
			s.LapsData = append(s.LapsData, models.Lap{
				Driver:       driver,
				LapNumber:    lap,
				LapStartTime: ptr(start),
				Position:     ptr(pos + 1),
			})
			samples := make([]models.TelemetrySample, 0, 60)
			for i := 0; i < 60; i++ {
				samples = append(samples, models.TelemetrySample{
					SessionTime: start + float64(i)*0.5,
					X:           ptr(float64(i)),
					Y:           ptr(float64(pos)),
				})
			}
			s.Telemetry[provider.TelemetryKey(driver, lap)] = samples
		}
	}
	return s
}

type failingStore struct {
	cache.NoopStore
}

func (failingStore) HealthCheck(_ context.Context) error {
	return errors.New("disk full")
}

func newTestRouter(store cache.Store) (*gin.Engine, *provider.MockProvider) {
	p := provider.NewMockProvider(testSession())
	router := New(&Dependencies{
		Config:   testConfig(),
		Provider: p,
		Cache:    store,
	})
	gin.SetMode(gin.TestMode)
	return router, p
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRootEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/", nil)
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"F1 Data Service"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		store      cache.Store
		wantStatus string
		wantCache  string
	}{
		{name: "healthy", store: cache.NoopStore{}, wantStatus: "healthy", wantCache: "ok"},
		{name: "degraded cache", store: failingStore{}, wantStatus: "degraded", wantCache: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(tt.store)

			req, _ := http.NewRequest("GET", "/api/v1/health", nil)
			w := serve(router, req)

			require.Equal(t, http.StatusOK, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp["status"])
			assert.Equal(t, tt.wantCache, resp["cache"])
			assert.Equal(t, "1.0.0", resp["version"])
		})
	}
}

func TestChunkEndpoint(t *testing.T) {
	router, p := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/telemetry/2024/16/chunk/1", nil)
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, 1, p.LoadCalls)

	var resp models.ChunkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ChunkPlan{ChunkNum: 1, TotalChunks: 10, StartLap: 3, EndLap: 4}, resp.ChunkInfo)
	assert.Equal(t, "Italian Grand Prix", resp.Track.Name)
	assert.Equal(t, 20, resp.Track.TotalLaps)
	assert.Empty(t, resp.Track.Outline)
	// two laps, two drivers, 30 ticks each at 1Hz
	assert.Equal(t, 120, resp.TotalFrames)
	assert.Len(t, resp.Telemetry, 120)
}

func TestChunkEndpoint_InvalidChunk(t *testing.T) {
	router, p := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/telemetry/2024/16/chunk/10", nil)
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"error":"Invalid chunk number. Must be between 0 and 9"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Zero(t, p.LoadCalls)
}

func TestGzipResponse(t *testing.T) {
	router, _ := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/telemetry/2024/16/chunk/0", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	reader, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)

	var resp models.ChunkResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 0, resp.ChunkInfo.ChunkNum)
	assert.NotEmpty(t, resp.Track.Outline)
}

func TestOverviewEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/telemetry/2024/Monza", nil)
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.OverviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// laps 1, 6, 11 and 16
	assert.Equal(t, 4, resp.TotalFrames)
	require.Len(t, resp.Telemetry, 4)
	assert.Equal(t, 16, resp.Telemetry[3].Lap)
}

func TestClearCacheEndpoint(t *testing.T) {
	router, p := newTestRouter(nil)
	cleared := false
	p.ClearCacheFunc = func(_ context.Context) error {
		cleared = true
		return nil
	}

	req, _ := http.NewRequest("POST", "/api/clear-cache", nil)
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cleared)

	// clearing is POST only
	req, _ = http.NewRequest("GET", "/api/clear-cache", nil)
	w = serve(router, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(nil)

	t.Run("simple request", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := serve(router, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req, _ := http.NewRequest("OPTIONS", "/api/telemetry/2024/16/chunk/0", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := serve(router, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/telemetry/2024/16/chunk/2", nil)
	serve(router, req)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "f1replay_telemetry_requests_total")
	assert.Contains(t, w.Body.String(), "f1replay_telemetry_frames_emitted_total")
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(nil)

	req, _ := http.NewRequest("GET", "/api/years", nil)
	w := serve(router, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
