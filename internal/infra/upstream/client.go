// Package upstream calls HTTP dependencies through the retry executor and
// reports their failures as classified Failures.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/backstop/internal/core/failure"
	"github.com/vietddude/backstop/internal/core/retry"
	"github.com/vietddude/backstop/internal/metrics"
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 8 << 20

// Config holds settings for one upstream.
type Config struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Result is a successful upstream response.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// HealthStatus summarizes recent calls.
type HealthStatus struct {
	Available     bool          `json:"available"`
	ErrorRate     float64       `json:"errorRate"`
	Latency       time.Duration `json:"latency"`
	LastSuccessAt time.Time     `json:"lastSuccessAt"`
	LastFailureAt time.Time     `json:"lastFailureAt"`
}

// Client calls a single upstream.
type Client struct {
	name       string
	base       *url.URL
	httpClient *http.Client
	policy     retry.Policy
	exec       *retry.Executor

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// NewClient creates a client for cfg retrying with policy.
func NewClient(cfg Config, policy retry.Policy, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %s url: %w", cfg.Name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream %s: unsupported scheme %q", cfg.Name, base.Scheme)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("upstream %s: %w", cfg.Name, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	exec := retry.NewExecutor("upstream:"+cfg.Name, logger)
	exec.OnRetry = metrics.ObserveRetry

	return &Client{
		name: cfg.Name,
		base: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy: policy,
		exec:   exec,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}, nil
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

type outcome struct {
	res *Result
	// fatal ends the retry loop without another attempt
	fatal error
}

// Get fetches path from the upstream, retrying transient failures under
// the client's policy. The error of the last attempt is returned as-is.
func (c *Client) Get(ctx context.Context, path, rawQuery string, header http.Header) (*Result, error) {
	start := time.Now()
	out, err := retry.Run(ctx, c.exec, c.policy, func() (outcome, error) {
		res, err := c.fetch(ctx, path, rawQuery, header)
		if err != nil && ClassifyError(err) == ActionFatal {
			return outcome{fatal: err}, nil
		}
		return outcome{res: res}, err
	})
	metrics.UpstreamLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err == nil {
		err = out.fatal
	}
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(c.name, "failure").Inc()
		return nil, err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(c.name, "success").Inc()
	return out.res, nil
}

// fetch makes a single GET request.
func (c *Client) fetch(ctx context.Context, path, rawQuery string, header http.Header) (*Result, error) {
	start := time.Now()

	target := c.base.JoinPath(path)
	target.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("upstream %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("read upstream %s response: %w", c.name, err)
	}

	if resp.StatusCode >= 400 {
		c.recordFailure()
		return nil, statusFailure(c.name, target.Path, resp, body)
	}

	c.recordSuccess(time.Since(start))
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// statusFailure maps an upstream error status onto the response status:
// client errors pass through, server errors become 502.
func statusFailure(name, path string, resp *http.Response, body []byte) *failure.Failure {
	opts := []failure.Option{
		failure.WithDetail("upstream", name),
		failure.WithDetail("upstream-status", resp.StatusCode),
		failure.WithDetail("upstream-path", path),
	}
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		opts = append(opts, failure.WithDetail("upstream-body", snippet))
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		opts = append(opts, failure.WithHeader("retry-after", ra))
	}

	status := resp.StatusCode
	msg := fmt.Sprintf("upstream %s returned %d", name, resp.StatusCode)
	if status >= 500 {
		status = http.StatusBadGateway
	} else {
		opts = append(opts, failure.WithLogLevel(failure.LevelWarn))
	}
	return failure.New(status, msg, opts...)
}

// ErrorAction determines how to handle an upstream error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}
	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	var f *failure.Failure
	if errors.As(err, &f) {
		upstreamStatus, _ := f.Details()["upstream-status"].(int)
		switch {
		case upstreamStatus == http.StatusRequestTimeout, upstreamStatus == http.StatusTooManyRequests:
			return ActionRetry
		case upstreamStatus >= 400 && upstreamStatus < 500:
			// Request issues, another attempt gets the same answer
			return ActionFatal
		}
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

// Health returns the upstream's health status.
func (c *Client) Health() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// Close cleans up resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) recordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCount++
	c.requestCount++
	c.totalLatency += latency
	c.health.LastSuccessAt = time.Now()
	c.health.Available = true

	if c.requestCount > 0 {
		c.health.ErrorRate = float64(c.failureCount) / float64(c.requestCount)
	}
	if c.successCount > 0 {
		c.health.Latency = c.totalLatency / time.Duration(c.successCount)
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	c.requestCount++
	c.health.LastFailureAt = time.Now()

	if c.requestCount > 0 {
		c.health.ErrorRate = float64(c.failureCount) / float64(c.requestCount)
	}

	if c.health.ErrorRate > 0.5 {
		c.health.Available = false
	}
}
