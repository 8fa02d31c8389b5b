// Package kizeo is the HTTP adapter for the Kizeo Forms REST API, implementing
// the media-fetch capability the runner consumes. Only the read side needed by
// ingestion is covered: media downloads and PDF exports.
package kizeo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
)

// Config holds Kizeo API connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the Kizeo Forms REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A zero timeout defaults to 30 seconds; upstream
// is rate limited and slow on large media.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch downloads one artifact: the named media of a form data entry, or its
// PDF export when mediaName is empty. Network failures and non-2xx responses
// wrap domain.ErrFetchFailed.
func (c *Client) Fetch(ctx context.Context, formID, dataID int, mediaName string) ([]byte, error) {
	var path string
	if mediaName == "" {
		path = fmt.Sprintf("/forms/%d/data/%d/pdf", formID, dataID)
	} else {
		path = fmt.Sprintf("/forms/%d/data/%d/medias/%s", formID, dataID, url.PathEscape(mediaName))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %s", domain.ErrFetchFailed, err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Kizeo returned non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.Int("form_id", formID),
			slog.Int("data_id", dataID),
			slog.String("media_name", mediaName),
		)
		return nil, fmt.Errorf("%w: upstream returned %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %s", domain.ErrFetchFailed, err)
	}

	c.logger.Debug("Fetched artifact from Kizeo",
		slog.Int("form_id", formID),
		slog.Int("data_id", dataID),
		slog.String("media_name", mediaName),
		slog.Int("bytes", len(data)),
	)

	return data, nil
}
