// Package cube fetches fact rows from the upstream OLAP cube service.
package cube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/metrics"
)

var (
	ErrServer      = errors.New("cube server error")
	ErrConflict    = errors.New("cube conflict")
	ErrClient      = errors.New("cube rejected request")
	ErrEmpty       = errors.New("cube returned no rows")
	ErrDecode      = errors.New("cube payload is not a row array")
	ErrCircuitOpen = errors.New("cube circuit open")
)

const (
	defaultTimeout         = 30 * time.Second
	defaultRemediationPath = "/POWERBI/CLEAR/"
	queryPath              = "/POWERBI/"
)

// browserHeaders are sent on every request; the upstream gateway rejects
// clients that do not look like a browser.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "pt-BR,pt;q=0.9,en;q=0.8",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

// FetchRecorder persists one entry per fetch cycle.
type FetchRecorder interface {
	Record(ctx context.Context, e domain.FetchLogEntry) error
}

type Config struct {
	BaseURL         string
	Client          string
	APIID           string
	Timeout         time.Duration
	RemediationPath string
	Policy          RetryPolicy
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client requests cube views under a retry policy. It is safe for
// concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	clock    clockwork.Clock
	log      *zap.Logger
	metrics  *metrics.Collector
	recorder FetchRecorder

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithClock(clock clockwork.Clock) Option { return func(c *Client) { c.clock = clock } }

func WithMetrics(m *metrics.Collector) Option { return func(c *Client) { c.metrics = m } }

func WithRecorder(r FetchRecorder) Option { return func(c *Client) { c.recorder = r } }

func New(cfg Config, log *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RemediationPath == "" {
		cfg.RemediationPath = defaultRemediationPath
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		clock:    clockwork.NewRealClock(),
		log:      log.Named("cube"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests one cube view. It never returns an error: every failure is
// folded into the result status.
func (c *Client) Fetch(ctx context.Context, cube string) FetchResult {
	start := c.clock.Now()
	log := c.log.With(zap.String("cube", cube))

	var res FetchResult
	_, err := c.breaker(cube).Execute(func() (interface{}, error) {
		res = c.fetchWithRetry(ctx, cube, log)
		// A caller giving up says nothing about upstream health.
		if res.Status == StatusFailed && ctx.Err() == nil {
			return nil, res.Err
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warn("circuit open, skipping fetch")
		res = emptyResult(StatusFailed, 0, fmt.Errorf("%w: %s", ErrCircuitOpen, cube))
	}

	elapsed := c.clock.Since(start)
	c.metrics.RecordCycle(cube, string(res.Status), elapsed)
	log.Info("fetch finished",
		zap.String("status", string(res.Status)),
		zap.Int("attempts", res.Attempts),
		zap.Int("rows", len(res.Records)),
		zap.Duration("elapsed", elapsed),
		zap.Error(res.Err),
	)
	c.record(ctx, cube, res, start, elapsed)
	return res
}

func (c *Client) fetchWithRetry(ctx context.Context, cube string, log *zap.Logger) FetchResult {
	p := c.cfg.Policy
	maxAttempts := p.attempts()

	var last outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = c.attempt(ctx, cube)
		c.metrics.RecordAttempt(cube, last.kind)

		switch last.kind {
		case outcomeOK:
			return FetchResult{Records: last.records, Status: StatusOK, Attempts: attempt}
		case outcomeClientError:
			log.Warn("cube rejected request", zap.Int("attempt", attempt), zap.Int("status_code", last.code))
			return emptyResult(StatusFailed, attempt, last.err)
		}

		log.Warn("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("outcome", last.kind),
			zap.Int("status_code", last.code),
			zap.Error(last.err),
		)
		if attempt == maxAttempts {
			break
		}

		delay := p.backoff(attempt)
		if last.kind == outcomeConflict {
			delay = p.ConflictDelay
		}
		if err := c.wait(ctx, delay); err != nil {
			log.Info("fetch cancelled during backoff", zap.Int("attempt", attempt), zap.Error(err))
			return emptyResult(StatusFailed, attempt, err)
		}
		if last.kind == outcomeConflict {
			c.remediate(ctx, cube, log)
		}
	}

	if last.kind == outcomeEmpty {
		return emptyResult(StatusEmpty, maxAttempts, last.err)
	}
	return emptyResult(StatusFailed, maxAttempts, last.err)
}

const (
	outcomeOK          = "ok"
	outcomeEmpty       = "empty"
	outcomeServerError = "http_5xx"
	outcomeConflict    = "conflict"
	outcomeClientError = "http_4xx"
	outcomeTransport   = "transport"
	outcomeDecode      = "decode"
)

type outcome struct {
	kind    string
	code    int
	records []domain.FactRecord
	err     error
}

func (c *Client) attempt(ctx context.Context, cube string) outcome {
	req, err := c.newRequest(ctx, queryPath, cube)
	if err != nil {
		return outcome{kind: outcomeTransport, err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return outcome{kind: outcomeTransport, err: fmt.Errorf("get %s: %w", cube, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{kind: outcomeTransport, code: resp.StatusCode, err: fmt.Errorf("read %s: %w", cube, err)}
	}

	switch {
	case resp.StatusCode >= 500:
		if c.cfg.Policy.isConflict(body) {
			return outcome{kind: outcomeConflict, code: resp.StatusCode, err: fmt.Errorf("%w: http %d", ErrConflict, resp.StatusCode)}
		}
		return outcome{kind: outcomeServerError, code: resp.StatusCode, err: fmt.Errorf("%w: http %d", ErrServer, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return outcome{kind: outcomeClientError, code: resp.StatusCode, err: fmt.Errorf("%w: http %d", ErrClient, resp.StatusCode)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		return outcome{kind: outcomeEmpty, code: resp.StatusCode, err: ErrEmpty}
	}

	var records []domain.FactRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return outcome{kind: outcomeDecode, code: resp.StatusCode, err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}
	if len(records) == 0 {
		return outcome{kind: outcomeEmpty, code: resp.StatusCode, err: ErrEmpty}
	}
	return outcome{kind: outcomeOK, code: resp.StatusCode, records: records}
}

// remediate asks the cube service to drop its cached state for the view.
// Failures are only logged.
func (c *Client) remediate(ctx context.Context, cube string, log *zap.Logger) {
	req, err := c.newRequest(ctx, c.cfg.RemediationPath, cube)
	if err != nil {
		log.Warn("build remediation request", zap.Error(err))
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordAttempt(cube, "remediation_failed")
		log.Warn("remediation call failed", zap.Error(err))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.metrics.RecordAttempt(cube, "remediation")
	log.Info("remediation call sent", zap.Int("status_code", resp.StatusCode))
}

func (c *Client) newRequest(ctx context.Context, path, cube string) (*http.Request, error) {
	q := url.Values{}
	q.Set("CLIENTE", c.cfg.Client)
	q.Set("ID", c.cfg.APIID)
	q.Set("VIEW", cube)
	q.Set("_", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", cube, err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// wait sleeps on the injected clock, returning early if ctx ends.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

func (c *Client) record(ctx context.Context, cube string, res FetchResult, start time.Time, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	e := domain.FetchLogEntry{
		Cube:      cube,
		Status:    string(res.Status),
		Attempts:  res.Attempts,
		Rows:      len(res.Records),
		StartedAt: start,
		Duration:  elapsed,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	// The log entry must survive a caller that already gave up.
	if err := c.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		c.log.Warn("record fetch", zap.String("cube", cube), zap.Error(err))
	}
}
