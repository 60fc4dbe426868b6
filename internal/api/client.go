package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/gridconnect/gridconnect/internal/config"
	"github.com/gridconnect/gridconnect/internal/http"
	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/ratelimit"
	"github.com/gridconnect/gridconnect/internal/retry"
)

// apiPrefix is the versioned root of every platform endpoint.
const apiPrefix = "/2/0"

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Interface("context", keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Interface("context", keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Interface("context", keysAndValues).Msg("[RETRY] " + msg)
}

// Client talks to the platform's file chunk and task endpoints for one workspace/model.
type Client struct {
	httpClient  *nethttp.Client
	baseURL     string
	token       string
	workspaceID string
	modelID     string
	limiter     *ratelimit.RateLimiter
	logger      *logging.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}

	httpClient, err := http.CreateTransferClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	policy := cfg.RetryPolicy()

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = policy.MaxRetries
	retryClient.RetryWaitMin = policy.Base
	retryClient.RetryWaitMax = policy.Cap
	retryClient.Backoff = PolicyBackoff(policy)
	retryClient.Logger = &retryLogger{logger: logger}

	return &Client{
		httpClient:  retryClient.StandardClient(),
		baseURL:     strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:       cfg.Token,
		workspaceID: cfg.WorkspaceID,
		modelID:     cfg.ModelID,
		limiter:     ratelimit.NewAPIRateLimiter(logger),
		logger:      logger,
	}, nil
}

// PolicyBackoff adapts a retry.Policy to retryablehttp. Throttling responses that carry
// Retry-After keep the server's requested delay.
func PolicyBackoff(p retry.Policy) retryablehttp.Backoff {
	return func(min, max time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
		if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
			if resp.Header.Get("Retry-After") != "" {
				return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
			}
		}
		return p.Interval(attemptNum)
	}
}

// modelPath returns the path prefix for the configured workspace and model.
func (c *Client) modelPath() string {
	return fmt.Sprintf("%s/workspaces/%s/models/%s", apiPrefix,
		url.PathEscape(c.workspaceID), url.PathEscape(c.modelID))
}

// doRequest performs a JSON request with authentication and rate limiting.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}
	return c.send(ctx, method, path, reqBody, "application/json", "application/json")
}

// doBytes performs a request whose body (if any) and response are raw chunk bytes.
func (c *Client) doBytes(ctx context.Context, method, path string, data []byte) (*nethttp.Response, error) {
	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}
	return c.send(ctx, method, path, reqBody, "application/octet-stream", "application/octet-stream")
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, accept string) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("request_id", requestID).Err(err).Msgf("%s %s failed", method, path)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msgf("%s %s", method, path)

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.logger.Warnf("THROTTLED: %s %s (Retry-After: %q)", method, path, resp.Header.Get("Retry-After"))
	}
	return resp, nil
}

// checkStatus turns an unexpected status into an *APIError. The caller still owns resp.Body.
func checkStatus(resp *nethttp.Response, operation string, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}
	return apiErr
}

// decodeJSON decodes resp.Body into v, tolerating an empty body.
func decodeJSON(resp *nethttp.Response, v interface{}, what string) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return nil
}
