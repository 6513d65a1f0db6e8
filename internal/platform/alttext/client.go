package alttext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beepbeepai/alttext-api/internal/config"
	"github.com/beepbeepai/alttext-api/internal/generation"
	"github.com/beepbeepai/alttext-api/internal/platform/cache"
	"github.com/beepbeepai/alttext-api/internal/quota"
	"github.com/beepbeepai/alttext-api/internal/store"
)

// maxBackoffUnits caps the linear backoff growth between HTTP attempts.
const maxBackoffUnits = 3

// maxResponseBytes bounds how much of an error body is read for
// classification and logging.
const maxResponseBytes = 1 << 20

// LimitChecker is the pre-flight quota gate. It must resolve every
// ambiguous state to false; only confirmed exhaustion may fail a request
// before it reaches the service.
type LimitChecker interface {
	HasReachedLimit(ctx context.Context) bool
}

// Client talks to the remote alt-text generation service. It implements
// generation.Generator and quota.UsageFetcher, owns request retries and
// credential headers, and maps HTTP failures onto the generation error
// taxonomy so the queue engine never sees a raw status code.
type Client struct {
	logger *slog.Logger
	cfg    config.APIConfig
	creds  store.CredentialStore
	cache  cache.Cache

	// httpClient serves metadata endpoints; generateClient carries the
	// longer timeout generation calls need.
	httpClient     *http.Client
	generateClient *http.Client

	// limits is optional and set after construction; see SetLimitChecker.
	limits LimitChecker

	// backoffUnit is one step of retry backoff. Tests shrink it.
	backoffUnit time.Duration
}

// NewClient creates a Client for the service rooted at cfg.BaseURL.
func NewClient(
	logger *slog.Logger,
	cfg config.APIConfig,
	creds store.CredentialStore,
	c cache.Cache,
) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("API base URL cannot be empty")
	}
	if creds == nil {
		return nil, errors.New("credential store cannot be nil")
	}
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 90 * time.Second
	}

	return &Client{
		logger:         logger,
		cfg:            cfg,
		creds:          creds,
		cache:          c,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		generateClient: &http.Client{Timeout: cfg.GenerateTimeout},
		backoffUnit:    time.Second,
	}, nil
}

// SetLimitChecker wires the pre-flight quota gate. It is attached after
// construction because the quota reconciler itself needs this client to
// fetch usage.
func (c *Client) SetLimitChecker(lc LimitChecker) {
	c.limits = lc
}

// generateRequest is the wire shape of a generation call.
type generateRequest struct {
	Image      generation.ImagePayload `json:"image"`
	Context    generation.PageContext  `json:"context"`
	Regenerate bool                    `json:"regenerate,omitempty"`
}

// Generate implements generation.Generator against POST api/generate.
func (c *Client) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if c.limits != nil && c.limits.HasReachedLimit(ctx) {
		return nil, fmt.Errorf("%w: local quota check reports exhaustion", generation.ErrQuotaExceeded)
	}

	if err := c.ValidateAuth(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(generateRequest{
		Image:      req.Image,
		Context:    req.Context,
		Regenerate: req.Regenerate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", generation.ErrInvalidImage, err)
	}

	c.logger.DebugContext(ctx, "requesting alt text generation",
		"subject_id", req.SubjectID,
		"regenerate", req.Regenerate)

	status, respBody, err := c.requestWithRetry(ctx, c.generateClient,
		http.MethodPost, "api/generate", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, c.classifyFailure(ctx, status, respBody)
	}

	var result generation.Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if result.AltText == "" {
		return nil, fmt.Errorf("%w: response carried no alt text", generation.ErrInvalidResponse)
	}
	return &result, nil
}

// FetchUsage implements quota.UsageFetcher against GET api/usage.
func (c *Client) FetchUsage(ctx context.Context) (*quota.RemoteUsage, error) {
	status, body, err := c.requestWithRetry(ctx, c.httpClient,
		http.MethodGet, "api/usage", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, c.classifyFailure(ctx, status, body)
	}

	var usage quota.RemoteUsage
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return &usage, nil
}

// requestWithRetry sends one HTTP request with up to cfg.MaxAttempts tries.
// Only failures with no status at all (network errors, timeouts) or with a
// retryable server status are tried again; everything else is the service's
// answer and is returned as-is. Backoff grows linearly, capped at three
// units, and honors context cancellation.
func (c *Client) requestWithRetry(
	ctx context.Context,
	client *http.Client,
	method, endpoint string,
	body []byte,
) (int, []byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		status, respBody, err := c.doRequest(ctx, client, method, endpoint, body)
		if err == nil && !retryableStatus(status) {
			return status, respBody, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%w: service answered %d", generation.ErrTransient, status)
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		units := attempt
		if units > maxBackoffUnits {
			units = maxBackoffUnits
		}
		delay := time.Duration(units) * c.backoffUnit
		c.logger.WarnContext(ctx, "request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return 0, nil, fmt.Errorf("%w: %v", generation.ErrTransient, ctx.Err())
		case <-time.After(delay):
		}
	}

	return 0, nil, lastErr
}

// doRequest performs a single attempt. A returned error means the request
// never produced a status (network failure, timeout).
func (c *Client) doRequest(
	ctx context.Context,
	client *http.Client,
	method, endpoint string,
	body []byte,
) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL(endpoint), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: building request: %v", generation.ErrTransient, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.setAuthHeaders(ctx, req); err != nil {
		return 0, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", generation.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", generation.ErrTransient, err)
	}
	return resp.StatusCode, respBody, nil
}

// setAuthHeaders attaches identity headers. An organization license key
// takes priority over a personal bearer token; the site hash always goes
// along so the backend meters per installation.
func (c *Client) setAuthHeaders(ctx context.Context, req *http.Request) error {
	creds, err := c.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading credentials: %v", generation.ErrTransient, err)
	}

	switch {
	case creds.LicenseKey != "":
		req.Header.Set("X-License-Key", creds.LicenseKey)
	case creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.SiteHash != "" {
		req.Header.Set("X-Site-Hash", creds.SiteHash)
	}
	return nil
}

func (c *Client) endpointURL(endpoint string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

// errorResponse is the body shape the service uses for failures. Usage
// counters ride along on quota errors.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
}

// classifyFailure maps a non-2xx service answer onto the generation error
// taxonomy. Auth-shaped rejections also clear the stored token so the next
// attempt does not repeat a dead credential.
func (c *Client) classifyFailure(ctx context.Context, status int, body []byte) error {
	var payload errorResponse
	_ = json.Unmarshal(body, &payload)
	message := payload.Error
	if message == "" {
		message = payload.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %d of %d used",
			generation.ErrQuotaExceeded, payload.Used, payload.Limit)

	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: compress or resize the image and retry",
			generation.ErrPayloadTooLarge)

	case authShaped(status, message):
		c.clearAuthState(ctx)
		return fmt.Errorf("%w: service rejected credentials (%d)",
			generation.ErrAuthRequired, status)

	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: service rejected payload (%d): %s",
			generation.ErrInvalidImage, status, message)

	case status >= 500:
		// Retries are already spent by the time we classify.
		return fmt.Errorf("%w: service answered %d: %s",
			generation.ErrServiceUnavailable, status, message)

	default:
		return fmt.Errorf("%w: unexpected status %d: %s",
			generation.ErrInvalidResponse, status, message)
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
