package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/f1replay/telemetry-service/internal/cache"
	"github.com/f1replay/telemetry-service/internal/metrics"
	"github.com/f1replay/telemetry-service/internal/models"
)

var (
	// errUpstreamNotFound marks a 404 from the data service
	errUpstreamNotFound = errors.New("not found upstream")

	// errFetchTimeout marks a fetch that ran out of its time budget
	errFetchTimeout = errors.New("data service request timed out")
)

// Options configures an HTTPProvider
type Options struct {
	BaseURL          string        // Base URL of the data service
	SessionType      string        // Session identifier, "R" when empty
	LoadTimeout      time.Duration // Hard limit for the session fetch, retries included
	MaxRetries       uint64        // Retries for transient session fetch failures
	RetryInterval    time.Duration // Initial backoff interval
	TelemetryTimeout time.Duration // Hard limit per lap telemetry fetch, retries included
	TelemetryRetries uint64        // Retries for transient lap telemetry failures
	Cache            cache.Store   // Response cache; nil disables caching
	Client           *http.Client  // HTTP client; http.DefaultClient when nil
	Logger           *zap.Logger
}

// fetchPolicy bounds one logical fetch
type fetchPolicy struct {
	timeout time.Duration
	retries uint64
}

// HTTPProvider loads sessions from the data service's JSON API:
//
//	GET {base}/api/v1/sessions/{year}/{race}/{session}
//	GET {base}/api/v1/sessions/{year}/{race}/{session}/telemetry/{driver}/{lap}
//
// Session fetches use the load policy. Lap telemetry fetches use the much
// tighter telemetry policy.
type HTTPProvider struct {
	opts      Options
	client    *http.Client
	store     cache.Store
	logger    *zap.Logger
	session   fetchPolicy
	telemetry fetchPolicy
}

// NewHTTPProvider creates a provider for the data service at opts.BaseURL
func NewHTTPProvider(opts Options) *HTTPProvider {
	if opts.SessionType == "" {
		opts.SessionType = "R"
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 120 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.TelemetryTimeout <= 0 {
		opts.TelemetryTimeout = 10 * time.Second
	}

	p := &HTTPProvider{
		opts:      opts,
		client:    opts.Client,
		store:     opts.Cache,
		logger:    opts.Logger,
		session:   fetchPolicy{timeout: opts.LoadTimeout, retries: opts.MaxRetries},
		telemetry: fetchPolicy{timeout: opts.TelemetryTimeout, retries: opts.TelemetryRetries},
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.store == nil {
		p.store = cache.NoopStore{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

type sessionPayload struct {
	Event   models.Event    `json:"event"`
	Results []models.Result `json:"results"`
	Laps    []models.Lap    `json:"laps"`
}

type telemetryPayload struct {
	Samples []models.TelemetrySample `json:"samples"`
}

func (p *HTTPProvider) sessionPath(year int, race RaceID) string {
	return fmt.Sprintf("/api/v1/sessions/%d/%s/%s",
		year, url.PathEscape(race.String()), url.PathEscape(p.opts.SessionType))
}

// LoadSession implements Provider.LoadSession
func (p *HTTPProvider) LoadSession(ctx context.Context, year int, race RaceID) (Session, error) {
	path := p.sessionPath(year, race)

	payload, err := fetchJSON[sessionPayload](ctx, p, path, p.session)
	if err != nil {
		switch {
		case errors.Is(err, errUpstreamNotFound):
			return nil, fmt.Errorf("%w: %d %s", ErrSessionNotFound, year, race)
		case errors.Is(err, errFetchTimeout):
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}

	laps := lo.Filter(payload.Laps, func(l models.Lap, _ int) bool {
		return l.Driver != "" && l.LapNumber >= 1
	})

	return &httpSession{
		provider: p,
		path:     path,
		event:    payload.Event,
		results:  payload.Results,
		laps:     laps,
	}, nil
}

// ClearCache implements Provider.ClearCache
func (p *HTTPProvider) ClearCache(ctx context.Context) error {
	return p.store.Clear(ctx)
}

// fetchJSON fetches path and decodes it into a T. A body that does not
// decode is evicted from the cache; when it came from the cache the data
// service is asked once more.
func fetchJSON[T any](ctx context.Context, p *HTTPProvider, path string, policy fetchPolicy) (T, error) {
	var out T

	body, cached, err := p.fetch(ctx, path, policy)
	if err != nil {
		return out, err
	}
	if err = json.Unmarshal(body, &out); err == nil {
		return out, nil
	}
	p.evict(ctx, path, err)
	if !cached {
		return out, fmt.Errorf("invalid payload: %w", err)
	}

	body, err = p.download(ctx, path, policy)
	if err != nil {
		return out, err
	}
	out = *new(T)
	if err := json.Unmarshal(body, &out); err != nil {
		p.evict(ctx, path, err)
		return out, fmt.Errorf("invalid payload: %w", err)
	}
	return out, nil
}

// evict drops a cache entry whose body could not be decoded
func (p *HTTPProvider) evict(ctx context.Context, path string, cause error) {
	p.logger.Warn("evicting undecodable cache entry", zap.String("key", path), zap.Error(cause))
	if err := p.store.Delete(ctx, path); err != nil {
		p.logger.Warn("cache delete failed", zap.String("key", path), zap.Error(err))
	}
}

// fetch returns the body at path, from the cache when possible
func (p *HTTPProvider) fetch(ctx context.Context, path string, policy fetchPolicy) ([]byte, bool, error) {
	body, ok, err := p.store.Get(ctx, path)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		p.logger.Warn("cache read failed", zap.String("key", path), zap.Error(err))
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return body, true, nil
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	body, err = p.download(ctx, path, policy)
	return body, false, err
}

// download requests path from the data service and caches the body.
// Transient failures are retried with exponential backoff within the
// policy's retry count and timeout.
func (p *HTTPProvider) download(ctx context.Context, path string, policy fetchPolicy) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, policy.timeout)
	defer cancel()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.opts.RetryInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(exp, policy.retries), ctx)

	var body []byte
	op := func() error {
		var err error
		body, err = p.get(ctx, path)
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.UpstreamRetries.Inc()
		p.logger.Warn("retrying data service request",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		if errors.Is(err, errUpstreamNotFound) {
			return nil, err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", errFetchTimeout, policy.timeout, path)
		}
		return nil, err
	}

	if err := p.store.Put(ctx, path, body); err != nil {
		p.logger.Warn("cache write failed", zap.String("key", path), zap.Error(err))
	}
	return body, nil
}

// get performs a single request. Errors that retrying cannot fix are
// wrapped as permanent.
func (p *HTTPProvider) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+path, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("failed to reach data service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errUpstreamNotFound)
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("data service returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("data service returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// httpSession is a session loaded by HTTPProvider
type httpSession struct {
	provider *HTTPProvider
	path     string
	event    models.Event
	results  []models.Result
	laps     []models.Lap
	closed   bool
}

func (s *httpSession) Event() models.Event {
	return s.event
}

func (s *httpSession) Results() []models.Result {
	return s.results
}

func (s *httpSession) Laps() []models.Lap {
	return s.laps
}

func (s *httpSession) LapTelemetry(ctx context.Context, lap models.Lap) ([]models.TelemetrySample, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	path := s.path + "/telemetry/" + url.PathEscape(lap.Driver) + "/" + strconv.Itoa(lap.LapNumber)
	payload, err := fetchJSON[telemetryPayload](ctx, s.provider, path, s.provider.telemetry)
	if err != nil {
		if errors.Is(err, errUpstreamNotFound) {
			return nil, fmt.Errorf("%w: %s lap %d", ErrTelemetryUnavailable, lap.Driver, lap.LapNumber)
		}
		return nil, fmt.Errorf("%w: %s lap %d: %w", ErrTelemetryFetch, lap.Driver, lap.LapNumber, err)
	}

	slices.SortStableFunc(payload.Samples, func(a, b models.TelemetrySample) int {
		switch {
		case a.SessionTime < b.SessionTime:
			return -1
		case a.SessionTime > b.SessionTime:
			return 1
		}
		return 0
	})
	return payload.Samples, nil
}

// Close drops the session's tables so they can be collected
func (s *httpSession) Close() error {
	s.closed = true
	s.laps = nil
	s.results = nil
	return nil
}
