package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f1replay/telemetry-service/internal/metrics"
	"github.com/f1replay/telemetry-service/internal/models"
	"github.com/f1replay/telemetry-service/internal/provider"
	"github.com/f1replay/telemetry-service/internal/telemetry"
)

const (
	// TelemetryCacheControl is sent with successful telemetry responses
	TelemetryCacheControl = "public, max-age=3600"

	// DefaultBuildTimeout bounds building one chunk or overview after the
	// session is loaded
	DefaultBuildTimeout = 90 * time.Second
)

// Error messages returned in the "error" field
const (
	msgInvalidChunk   = "Invalid chunk number. Must be between 0 and 9"
	msgInvalidYear    = "Invalid year"
	msgInvalidRace    = "Invalid race identifier"
	msgNoLapData      = "No lap data available"
	msgTimeout        = "Timed out loading session data"
	msgNotFound       = "Session not found"
	msgLoadFailed     = "Failed to load session data"
	msgAssemblyFailed = "Failed to build telemetry"
	msgBuildTimeout   = "Timed out building telemetry"
	msgUpstreamDown   = "Data service is failing, try again later"
	msgClearFailed    = "Failed to clear cache"
)

// TelemetryHandler serves race replay telemetry. Logical failures are
// reported with status 200 and an "error" field so clients handle a single
// response shape.
type TelemetryHandler struct {
	provider     provider.Provider
	assembler    *telemetry.Assembler
	buildTimeout time.Duration
	logger       *zap.Logger
}

// NewTelemetryHandler creates a telemetry handler resampling at rateHz
func NewTelemetryHandler(p provider.Provider, rateHz float64, logger *zap.Logger) *TelemetryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelemetryHandler{
		provider:     p,
		assembler:    telemetry.NewAssembler(rateHz, logger),
		buildTimeout: DefaultBuildTimeout,
		logger:       logger,
	}
}

// WithBuildTimeout sets the time limit for assembling one response
func (h *TelemetryHandler) WithBuildTimeout(d time.Duration) *TelemetryHandler {
	if d > 0 {
		h.buildTimeout = d
	}
	return h
}

// sessionRequest holds validated path parameters
type sessionRequest struct {
	year int
	race provider.RaceID
}

// parseSessionRequest validates :year and :race, writing an error payload on failure
func parseSessionRequest(c *gin.Context) (sessionRequest, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 {
		c.JSON(http.StatusOK, gin.H{"error": msgInvalidYear})
		return sessionRequest{}, false
	}

	race, err := provider.ParseRace(c.Param("race"))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": msgInvalidRace})
		return sessionRequest{}, false
	}

	return sessionRequest{year: year, race: race}, true
}

// loadSession loads the requested session, writing an error payload on failure.
// The caller must close the returned session.
func (h *TelemetryHandler) loadSession(c *gin.Context, req sessionRequest) (provider.Session, bool) {
	start := time.Now()
	session, err := h.provider.LoadSession(c.Request.Context(), req.year, req.race)
	if err != nil {
		metrics.SessionLoadDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		h.logger.Error("session load failed",
			zap.Int("year", req.year),
			zap.Stringer("race", req.race),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": loadErrorMessage(err)})
		return nil, false
	}
	metrics.SessionLoadDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	return session, true
}

func buildErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return msgBuildTimeout
	case errors.Is(err, telemetry.ErrTooManyFailures):
		return msgUpstreamDown
	default:
		return msgAssemblyFailed
	}
}

func loadErrorMessage(err error) string {
	switch {
	case errors.Is(err, provider.ErrTimeout):
		return msgTimeout
	case errors.Is(err, provider.ErrSessionNotFound):
		return msgNotFound
	default:
		return fmt.Sprintf("%s: %v", msgLoadFailed, err)
	}
}

// noLapData writes the empty-session payload
func noLapData(c *gin.Context, name string) {
	c.JSON(http.StatusOK, gin.H{
		"error":        msgNoLapData,
		"track":        models.TrackInfo{Name: name, Outline: []models.TrackPoint{}},
		"telemetry":    []any{},
		"total_frames": 0,
	})
}

// GetChunk returns one chunk of resampled telemetry. Only chunk 0 carries
// the track outline.
// GET /api/telemetry/:year/:race/chunk/:chunk_num
func (h *TelemetryHandler) GetChunk(c *gin.Context) {
	const endpoint = "chunk"

	// validated before touching the provider
	chunkNum, err := strconv.Atoi(c.Param("chunk_num"))
	if err != nil || chunkNum < 0 || chunkNum >= telemetry.ChunkCount {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "invalid").Inc()
		c.JSON(http.StatusOK, gin.H{"error": msgInvalidChunk})
		return
	}

	req, ok := parseSessionRequest(c)
	if !ok {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "invalid").Inc()
		return
	}

	session, ok := h.loadSession(c, req)
	if !ok {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "load_error").Inc()
		return
	}
	defer session.Close()

	laps := session.Laps()
	name := session.Event().Name
	if len(laps) == 0 {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "no_laps").Inc()
		noLapData(c, name)
		return
	}

	totalLaps := telemetry.TotalLaps(laps)
	plan, err := telemetry.PlanChunk(totalLaps, chunkNum, telemetry.ChunkCount)
	if err != nil {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "invalid").Inc()
		c.JSON(http.StatusOK, gin.H{"error": msgInvalidChunk})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.buildTimeout)
	defer cancel()

	assembly, err := h.assembler.Assemble(ctx, session, plan.StartLap, plan.EndLap, chunkNum == 0)
	if err != nil {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "assembly_error").Inc()
		h.logger.Warn("chunk assembly aborted",
			zap.Int("year", req.year),
			zap.Stringer("race", req.race),
			zap.Int("chunk", chunkNum),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": buildErrorMessage(err)})
		return
	}

	h.logger.Debug("chunk assembled",
		zap.Int("year", req.year),
		zap.Stringer("race", req.race),
		zap.Int("chunk", chunkNum),
		zap.Int("start_lap", plan.StartLap),
		zap.Int("end_lap", plan.EndLap),
		zap.Int("frames", len(assembly.Frames)))

	metrics.TelemetryRequests.WithLabelValues(endpoint, "ok").Inc()
	metrics.FramesEmitted.Add(float64(len(assembly.Frames)))

	c.Header("Cache-Control", TelemetryCacheControl)
	c.JSON(http.StatusOK, models.ChunkResponse{
		ChunkInfo: plan,
		Track: models.TrackInfo{
			Name:      name,
			TotalLaps: totalLaps,
			Outline:   assembly.Outline,
		},
		Telemetry:   assembly.Frames,
		TotalFrames: len(assembly.Frames),
	})
}

// GetOverview returns every fifth lap's mid-lap driver positions for the
// whole session together with the track outline.
// GET /api/telemetry/:year/:race
func (h *TelemetryHandler) GetOverview(c *gin.Context) {
	const endpoint = "overview"

	req, ok := parseSessionRequest(c)
	if !ok {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "invalid").Inc()
		return
	}

	session, ok := h.loadSession(c, req)
	if !ok {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "load_error").Inc()
		return
	}
	defer session.Close()

	laps := session.Laps()
	name := session.Event().Name
	if len(laps) == 0 {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "no_laps").Inc()
		noLapData(c, name)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.buildTimeout)
	defer cancel()

	outline := h.assembler.Outline(ctx, session)
	overview, totalFrames, err := h.assembler.Overview(ctx, session, telemetry.OverviewStride)
	if err != nil {
		metrics.TelemetryRequests.WithLabelValues(endpoint, "assembly_error").Inc()
		h.logger.Warn("overview assembly aborted",
			zap.Int("year", req.year),
			zap.Stringer("race", req.race),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": buildErrorMessage(err)})
		return
	}

	metrics.TelemetryRequests.WithLabelValues(endpoint, "ok").Inc()

	c.Header("Cache-Control", TelemetryCacheControl)
	c.JSON(http.StatusOK, models.OverviewResponse{
		Track: models.TrackInfo{
			Name:      name,
			TotalLaps: telemetry.TotalLaps(laps),
			Outline:   outline,
		},
		Telemetry:   overview,
		TotalFrames: totalFrames,
	})
}

// ClearCache drops every cached upstream response
// POST /api/clear-cache
func (h *TelemetryHandler) ClearCache(c *gin.Context) {
	if err := h.provider.ClearCache(c.Request.Context()); err != nil {
		h.logger.Error("cache clear failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": msgClearFailed})
		return
	}
	h.logger.Info("provider cache cleared")
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}
