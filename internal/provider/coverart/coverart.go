// Package coverart fetches album artwork from the Cover Art Archive and
// from plain image URLs.
package coverart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxImageSize caps how much of a response is read as image data.
const maxImageSize = 20 << 20

// Client implements metadata.CoverSource.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
}

// New creates a new Cover Art Archive client.
func New(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "tunetag/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     "https://coverartarchive.org",
		userAgent:  userAgent,
	}
}

// Front returns the 500px front cover of a release. A release without
// artwork yields nil and no error.
func (c *Client) Front(ctx context.Context, releaseID string) ([]byte, error) {
	if releaseID == "" {
		return nil, nil
	}
	u := fmt.Sprintf("%s/release/%s/front-500", c.apiURL, url.PathEscape(releaseID))
	data, status, err := c.fetch(ctx, u)
	if status == http.StatusNotFound {
		return nil, nil
	}
	return data, err
}

// Download fetches an image from an arbitrary URL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	data, _, err := c.fetch(ctx, rawURL)
	return data, err
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create cover request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cover request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("cover download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read cover: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, resp.StatusCode, fmt.Errorf("cover exceeds %d bytes", maxImageSize)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return nil, resp.StatusCode, fmt.Errorf("cover is not an image (%s)", ct)
	}
	return data, resp.StatusCode, nil
}
