package acoustid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tunetag/internal/fingerprint"
	"tunetag/internal/metadata"
)

// ErrNoAPIKey is returned by Identify when no client key is configured.
var ErrNoAPIKey = errors.New("acoustid: no API key configured")

// Fingerprinter produces the Chromaprint fingerprint AcoustID looks up.
type Fingerprinter interface {
	Calculate(ctx context.Context, path string) (fingerprint.Result, error)
}

// Client identifies audio files through the AcoustID web service and
// implements metadata.Identifier.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	fp         Fingerprinter
	limiter    *rate.Limiter
}

// New creates a new AcoustID client.
func New(apiKey string, fp Fingerprinter) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://api.acoustid.org/v2/lookup",
		apiKey:     apiKey,
		fp:         fp,
		// AcoustID allows three requests per second.
		limiter: rate.NewLimiter(rate.Every(334*time.Millisecond), 1),
	}
}

// Identify fingerprints path and returns every candidate recording in the
// order the service ranked them.
func (c *Client) Identify(ctx context.Context, path string) ([]metadata.Match, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	fp, err := c.fp.Calculate(ctx, path)
	if err != nil {
		return nil, err
	}
	return c.Lookup(ctx, fp)
}

// Lookup resolves an already computed fingerprint.
func (c *Client) Lookup(ctx context.Context, fp fingerprint.Result) ([]metadata.Match, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client", c.apiKey)
	form.Set("meta", "recordings releases")
	form.Set("format", "json")
	form.Set("duration", strconv.Itoa(fp.Duration))
	form.Set("fingerprint", fp.Fingerprint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create acoustid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "tunetag/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acoustid request failed: %w", err)
	}
	defer resp.Body.Close()

	var lr lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&lr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("acoustid returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode acoustid response: %w", err)
	}
	if lr.Status != "ok" {
		msg := "unknown error"
		if lr.Error != nil {
			msg = lr.Error.Message
		}
		return nil, fmt.Errorf("acoustid API error: %s", msg)
	}

	return parseResults(lr.Results), nil
}

func parseResults(results []result) []metadata.Match {
	var matches []metadata.Match
	for _, res := range results {
		if len(res.Recordings) == 0 {
			continue
		}
		rec := res.Recordings[0]
		m := metadata.Match{
			Score:       res.Score,
			RecordingID: rec.ID,
			Title:       rec.Title,
			Artist:      joinArtists(rec.Artists),
		}
		if len(rec.Releases) > 0 {
			m.ReleaseID = rec.Releases[0].ID
		}
		matches = append(matches, m)
	}
	return matches
}

func joinArtists(artists []artist) string {
	var b strings.Builder
	for i, a := range artists {
		b.WriteString(a.Name)
		if a.JoinPhrase != "" {
			b.WriteString(a.JoinPhrase)
		} else if i < len(artists)-1 {
			b.WriteString(", ")
		}
	}
	return b.String()
}

// AcoustID API response types

type lookupResponse struct {
	Status  string    `json:"status"`
	Results []result  `json:"results"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Duration float64   `json:"duration"`
	Artists  []artist  `json:"artists"`
	Releases []release `json:"releases"`
}

type artist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
}

type release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
