package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/evidentia-hq/evidentia/internal/models"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	defaultMaxAttempts     = 3
	defaultRetryInitial    = 2 * time.Second
	defaultRetryMax        = 10 * time.Second
)

// Config tunes a Client. Zero values fall back to production defaults; the
// retry intervals are injectable so tests run without real backoff delays.
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	MaxAttempts     int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RatePerSec      float64
}

// Client talks to the case-management API. Evidence downloads use a
// dedicated http.Client with an extended timeout since files can be large.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	download     *http.Client
	limiter      *rate.Limiter
	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration
	log          *zap.Logger
}

// NewClient builds a case-management API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		http:         &http.Client{Timeout: cfg.Timeout},
		download:     &http.Client{Timeout: cfg.DownloadTimeout},
		limiter:      limiter,
		maxAttempts:  cfg.MaxAttempts,
		retryInitial: cfg.RetryInitial,
		retryMax:     cfg.RetryMax,
		log:          logger,
	}
}

// envelope is the upstream response wrapper: {"status": "...", "data": ...}.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// GetCase fetches case metadata. The upstream API only exposes a flat case
// listing, so the lookup filters client-side and reports ErrNotFound when
// the identifier is absent from the authoritative list.
func (c *Client) GetCase(ctx context.Context, caseID int64) (*models.Case, error) {
	data, err := c.getJSON(ctx, "/manage/cases/list", nil)
	if err != nil {
		return nil, err
	}

	var cases []models.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Body: "malformed case list: " + err.Error()}
	}

	for i := range cases {
		if cases[i].CaseID == caseID {
			return &cases[i], nil
		}
	}
	return nil, fmt.Errorf("case %d: %w", caseID, ErrNotFound)
}

// ListEvidence lists all evidence files attached to a case.
func (c *Client) ListEvidence(ctx context.Context, caseID int64) ([]models.Evidence, error) {
	q := url.Values{"cid": {strconv.FormatInt(caseID, 10)}}
	data, err := c.getJSON(ctx, "/case/evidences/list", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Evidences []models.Evidence `json:"evidences"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Body: "malformed evidence list: " + err.Error()}
	}

	c.log.Debug("listed evidence", zap.Int64("case_id", caseID), zap.Int("count", len(payload.Evidences)))
	return payload.Evidences, nil
}

// DownloadEvidence fetches the raw bytes of one evidence file.
func (c *Client) DownloadEvidence(ctx context.Context, evidenceID, caseID int64) ([]byte, error) {
	path := fmt.Sprintf("/case/evidences/%d/download", evidenceID)
	q := url.Values{"cid": {strconv.FormatInt(caseID, 10)}}

	var content []byte
	operation := func() error {
		body, err := c.do(ctx, c.download, path, q)
		if err != nil {
			return err
		}
		content = body
		return nil
	}
	if err := c.retry(ctx, operation); err != nil {
		return nil, err
	}

	c.log.Debug("downloaded evidence",
		zap.Int64("evidence_id", evidenceID),
		zap.Int64("case_id", caseID),
		zap.Int("bytes", len(content)))
	return content, nil
}

// HealthCheck reports whether the upstream API is reachable. Best effort:
// any failure reads as unhealthy, never as an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/versions", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return false
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Status == "success"
}

// getJSON performs a GET with the retry policy and unwraps the response
// envelope, failing on a non-success status marker.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var data json.RawMessage
	operation := func() error {
		body, err := c.do(ctx, c.http, path, query)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return backoff.Permanent(&APIError{StatusCode: http.StatusOK, Body: "invalid JSON response: " + err.Error()})
		}
		if env.Status != "success" {
			return backoff.Permanent(&APIError{StatusCode: http.StatusOK, Body: "unexpected response status: " + env.Status})
		}
		data = env.Data
		return nil
	}
	if err := c.retry(ctx, operation); err != nil {
		return nil, err
	}
	return data, nil
}

// do performs a single authenticated GET and classifies the outcome.
// Network and timeout failures come back wrapped in ErrTransient and are the
// only retryable kind; 401 and 404 map to their sentinels, any other non-2xx
// to *APIError, all permanent.
func (c *Client) do(ctx context.Context, client *http.Client, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	c.authorize(req)

	resp, err := client.Do(req)
	if err != nil {
		c.log.Warn("request failed, may retry", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, backoff.Permanent(fmt.Errorf("%w: invalid or expired API key", ErrAuthFailed))
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", path, ErrNotFound))
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// retry runs op under exponential backoff, retrying transient failures up to
// the attempt budget and passing permanent ones straight through.
func (c *Client) retry(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
	return backoff.Retry(op, policy)
}
