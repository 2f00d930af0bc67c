// Package api is the HTTP channel to the remote authority. It serializes
// operation batches deterministically (payload maps encode with sorted
// keys), attaches bearer credentials, and retries transient failures with
// jittered exponential backoff.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"example.com/syncengine/internal/auth"
)

// DefaultMaxAttempts is the retry budget per submission.
const DefaultMaxAttempts = 3

// Client talks to the authority. All endpoints are POST JSON.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      auth.TokenSource
	maxAttempts int
	logger      *log.Logger

	// jitter returns the backoff base factor in [0.15, 0.35). sleep waits
	// for the computed delay. Both are swappable in tests.
	jitter func() float64
	sleep  func(context.Context, time.Duration) error
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the logger used to report retries and stale responses.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxAttempts overrides the per-submission retry budget.
func WithMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// NewClient constructs a Client for the given authority base URL.
func NewClient(baseURL string, tokens auth.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
		tokens:      tokens,
		maxAttempts: DefaultMaxAttempts,
		logger:      log.New(log.Writer(), "[api] ", log.LstdFlags),
		jitter: func() float64 {
			return 0.15 + rand.Float64()*0.20
		},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay computes the wait after the given failed attempt (1-based):
// base * 2^(attempt-1) seconds, where base is drawn from [0.15, 0.35) once
// per submission. Reusing one draw across a retry cycle keeps the delays
// strictly increasing; resampling could make a later delay shorter.
func backoffDelay(base float64, attempt int) time.Duration {
	scaled := base * float64(uint(1)<<uint(attempt-1))
	return time.Duration(scaled * float64(time.Second))
}

// call submits one request with the retry policy: 5xx and 429 are retried
// with backoff until the attempt budget runs out; any other 4xx is terminal.
// The response body, when it decodes as a normalized envelope, is decoded
// into out even on error statuses so callers can read structured codes.
func (c *Client) call(ctx context.Context, endpoint string, reqBody, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	base := c.jitter()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			retriesTotal.WithLabelValues(endpoint).Inc()
			if err := c.sleep(ctx, backoffDelay(base, attempt-1)); err != nil {
				return err
			}
		}

		status, body, err := c.post(ctx, endpoint, token, payload)
		if err != nil {
			lastErr = err
			submitAttempts.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Printf("%s attempt %d/%d failed: %v", endpoint, attempt, c.maxAttempts, err)
			continue
		}

		if status >= 200 && status < 300 {
			submitAttempts.WithLabelValues(endpoint, "ok").Inc()
			if out != nil {
				if err := json.Unmarshal(body, out); err != nil {
					return fmt.Errorf("decode %s response: %w", endpoint, err)
				}
			}
			return nil
		}

		apiErr := decodeAPIError(status, body)
		if apiErr.Transient() {
			lastErr = apiErr
			submitAttempts.WithLabelValues(endpoint, "transient").Inc()
			c.logger.Printf("%s attempt %d/%d: transient status %d", endpoint, attempt, c.maxAttempts, status)
			continue
		}

		// Terminal rejection: no retry. The envelope is still surfaced as
		// data alongside the typed error.
		submitAttempts.WithLabelValues(endpoint, "rejected").Inc()
		if apiErr.Conflict() {
			conflictsTotal.Inc()
		}
		if out != nil {
			_ = json.Unmarshal(body, out)
		}
		return apiErr
	}

	return fmt.Errorf("%s: retry budget exhausted after %d attempts: %w", endpoint, c.maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, endpoint, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// decodeAPIError extracts the normalized error body, falling back to a bare
// status error when the body is not a decodable envelope.
func decodeAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error *ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &APIError{
			Status:  status,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
			Details: envelope.Error.Details,
		}
	}
	return &APIError{Status: status}
}

// StartActiveWorkout creates the workout aggregate.
func (c *Client) StartActiveWorkout(ctx context.Context, req StartActiveWorkoutRequest) (*StartActiveWorkoutResponse, error) {
	resp := &StartActiveWorkoutResponse{}
	err := c.call(ctx, "startActiveWorkout", req, resp)
	return resp, err
}

// LogSet records a completed set.
func (c *Client) LogSet(ctx context.Context, req LogSetRequest) (*LogSetResponse, error) {
	resp := &LogSetResponse{}
	err := c.call(ctx, "logSet", req, resp)
	return resp, err
}

// PatchActiveWorkout applies field/structure mutations.
func (c *Client) PatchActiveWorkout(ctx context.Context, req PatchActiveWorkoutRequest) (*PatchActiveWorkoutResponse, error) {
	resp := &PatchActiveWorkoutResponse{}
	err := c.call(ctx, "patchActiveWorkout", req, resp)
	return resp, err
}

// AutofillExercise applies an AI-driven bulk patch.
func (c *Client) AutofillExercise(ctx context.Context, req AutofillExerciseRequest) (*AutofillExerciseResponse, error) {
	resp := &AutofillExerciseResponse{}
	err := c.call(ctx, "autofillExercise", req, resp)
	return resp, err
}

// CompleteActiveWorkout finalizes (or discards) the aggregate.
func (c *Client) CompleteActiveWorkout(ctx context.Context, req CompleteActiveWorkoutRequest) (*CompleteActiveWorkoutResponse, error) {
	resp := &CompleteActiveWorkoutResponse{}
	err := c.call(ctx, "completeActiveWorkout", req, resp)
	return resp, err
}

// ApplyAction submits one OCC-guarded canvas mutation.
func (c *Client) ApplyAction(ctx context.Context, req ApplyActionRequest) (*ApplyActionResponse, error) {
	resp := &ApplyActionResponse{}
	err := c.call(ctx, "applyAction", req, resp)
	return resp, err
}

// BootstrapCanvas creates the canvas aggregate.
func (c *Client) BootstrapCanvas(ctx context.Context, req BootstrapCanvasRequest) (*BootstrapCanvasResponse, error) {
	resp := &BootstrapCanvasResponse{}
	err := c.call(ctx, "bootstrapCanvas", req, resp)
	return resp, err
}

// GetCanvasState fetches the authoritative snapshot, typically after a
// version conflict.
func (c *Client) GetCanvasState(ctx context.Context, req GetCanvasStateRequest) (*GetCanvasStateResponse, error) {
	resp := &GetCanvasStateResponse{}
	err := c.call(ctx, "getCanvasState", req, resp)
	return resp, err
}
