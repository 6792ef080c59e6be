package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
)

// ChannelSender pushes messages to a destination channel. Implemented
// over HTTP here; mocked in coordinator tests.
type ChannelSender interface {
	SendMedia(ctx context.Context, destination, mediaURL, caption string) error
	SendText(ctx context.Context, destination, text string) error
}

type HTTPChannelClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewHTTPChannelClient(cfg config.DeliveryConfig) *HTTPChannelClient {
	return &HTTPChannelClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
	}
}

func (c *HTTPChannelClient) SendMedia(ctx context.Context, destination, mediaURL, caption string) error {
	return c.post(ctx, "/messages/media", map[string]string{
		"destination": destination,
		"media_url":   mediaURL,
		"caption":     caption,
	})
}

func (c *HTTPChannelClient) SendText(ctx context.Context, destination, text string) error {
	return c.post(ctx, "/messages/text", map[string]string{
		"destination": destination,
		"text":        text,
	})
}

func (c *HTTPChannelClient) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(err, "failed to encode channel message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, "failed to build channel request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(err, "channel request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errs.New(fmt.Sprintf("channel returned %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
