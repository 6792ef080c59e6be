package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
)

var (
	ErrRetryExhausted = errs.New("generation request failed after all retry attempts")
	ErrUnknownRef     = errs.New("unknown generation reference")

	errMalformedResponse = errs.New("malformed generation response body")
)

// Status is the remote service's job status normalized to three values.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type SubmitRequest struct {
	JobID   uuid.UUID       `json:"request_id"`
	Payload json.RawMessage `json:"input"`
}

type PollResult struct {
	Status        Status
	ResultPayload json.RawMessage
	ErrorText     string
}

// RemoteError carries the retry classification of a failed remote call.
// Timeouts, connection failures, 5xx and 429 are retryable; any other
// 4xx means the request itself is bad and retrying cannot help.
type RemoteError struct {
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("generation service returned %d: %s", e.StatusCode, e.Body)
}

func IsRetryable(err error) bool {
	var re *RemoteError
	if errs.As(err, &re) {
		return re.Retryable
	}
	// the caller gave up; retrying past cancellation is pointless
	if errs.Is(err, context.Canceled) {
		return false
	}
	// a 2xx whose body we cannot parse will not parse next time either
	if errs.Is(err, errMalformedResponse) {
		return false
	}
	// transport-level failures (timeouts, refused connections) arrive
	// as plain errors from net/http and are always worth retrying
	return true
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxTries   uint64
	newBackoff func() backoff.BackOff
}

func NewClient(cfg config.GenerationConfig) *Client {
	maxTries := uint64(cfg.MaxAttempts)
	if maxTries == 0 {
		maxTries = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxTries:   maxTries,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.BaseBackoff
			return b
		},
	}
}

// Submit starts a generation and returns the remote reference.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", errs.Wrap(err, "failed to encode generation request")
	}

	var resp struct {
		ID string `json:"id"`
	}
	err = c.doWithRetry(ctx, func() error {
		return c.call(ctx, http.MethodPost, "/v1/generations", body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errs.New("generation service returned empty reference")
	}
	return resp.ID, nil
}

// Poll fetches the current state of a previously submitted generation.
func (c *Client) Poll(ctx context.Context, externalRef string) (*PollResult, error) {
	var resp struct {
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
		Error  string          `json:"error"`
	}
	err := c.doWithRetry(ctx, func() error {
		return c.call(ctx, http.MethodGet, "/v1/generations/"+externalRef, nil, &resp)
	})
	if err != nil {
		var re *RemoteError
		if errs.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, errs.Mark(err, ErrUnknownRef)
		}
		return nil, err
	}

	result := &PollResult{ResultPayload: resp.Output, ErrorText: resp.Error}
	switch resp.Status {
	case "succeeded", "completed", "done":
		result.Status = StatusSucceeded
	case "failed", "canceled", "error":
		result.Status = StatusFailed
	default:
		result.Status = StatusRunning
	}
	return result, nil
}

// doWithRetry retries retryable failures with exponential backoff and
// gives up immediately on fatal ones.
func (c *Client) doWithRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackoff(), c.maxTries-1), ctx)
	err := backoff.Retry(func() error {
		if err := op(); err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, policy)
	if err != nil && IsRetryable(err) {
		return errs.Mark(err, ErrRetryExhausted)
	}
	return err
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errs.Wrap(err, "failed to build generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(err, "generation request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.Wrap(err, "failed to read generation response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errs.Mark(errs.Wrap(err, "failed to decode generation response"), errMalformedResponse)
		}
	}
	return nil
}
