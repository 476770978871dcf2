package discogs

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

	"golang.org/x/time/rate"

	"tunetag/internal/metadata"
)

// Client searches the Discogs database. It is a tertiary enrichment
// source for label, year and genre.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
	token      string
	limiter    *rate.Limiter
}

// New creates a new Discogs client. Discogs requires a descriptive
// User-Agent; token is optional.
func New(userAgent, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://api.discogs.com",
		userAgent:  userAgent,
		token:      token,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (c *Client) Name() string { return "discogs" }

// Enrich searches releases by artist and album and returns the first hit.
func (c *Client) Enrich(ctx context.Context, q metadata.Query) (metadata.Record, error) {
	if q.Artist == "" && q.Album == "" {
		return metadata.Record{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return metadata.Record{}, err
	}

	params := url.Values{}
	params.Set("type", "release")
	if q.Artist != "" {
		params.Set("artist", q.Artist)
	}
	if q.Album != "" {
		params.Set("release_title", q.Album)
	} else if q.Title != "" {
		params.Set("track", q.Title)
	}
	params.Set("per_page", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/database/search?"+params.Encode(), nil)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("failed to create discogs request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("discogs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return metadata.Record{}, fmt.Errorf("discogs search returned %d: %s", resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return metadata.Record{}, fmt.Errorf("failed to decode discogs response: %w", err)
	}
	if len(sr.Results) == 0 {
		return metadata.Record{}, nil
	}
	return recordFromResult(sr.Results[0]), nil
}

func recordFromResult(r result) metadata.Record {
	rec := metadata.Record{
		Genre:    strings.Join(r.Genre, ", "),
		CoverURL: r.CoverImage,
	}
	if y, err := strconv.Atoi(strings.TrimSpace(r.Year)); err == nil && y > 0 {
		rec.Year = y
		rec.ReleaseDate = r.Year
	}
	if len(r.Label) > 0 {
		rec.Publisher = r.Label[0]
	}
	if len(r.Style) > 0 {
		rec.Extra = map[string]string{"STYLE": strings.Join(r.Style, ", ")}
	}
	return rec
}

// Discogs API response types

type searchResponse struct {
	Results []result `json:"results"`
}

type result struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	Year       string   `json:"year"`
	Genre      []string `json:"genre"`
	Style      []string `json:"style"`
	Label      []string `json:"label"`
	CoverImage string   `json:"cover_image"`
}
