package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunetag/internal/metadata"
)

// Client is a Deezer API client. It serves as a tertiary enrichment source.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
}

// New creates a new Deezer client.
func New(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "tunetag/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://api.deezer.com",
		userAgent:  userAgent,
	}
}

func (c *Client) Name() string { return "deezer" }

// Enrich returns the closest Deezer track for q, or an empty record when
// nothing is close enough.
func (c *Client) Enrich(ctx context.Context, q metadata.Query) (metadata.Record, error) {
	results, err := c.Search(ctx, q)
	if err != nil {
		return metadata.Record{}, err
	}
	best, _ := metadata.PickCandidate(q, results)
	return best, nil
}

// Search queries the Deezer search API and returns matching tracks.
func (c *Client) Search(ctx context.Context, query metadata.Query) ([]metadata.Record, error) {
	q := buildQuery(query)
	if q == "" {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/search?q=%s&limit=5", c.apiURL, url.QueryEscape(q))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create deezer request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deezer search returned %d: %s", resp.StatusCode, body)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode deezer response: %w", err)
	}

	if searchResp.Error != nil {
		return nil, fmt.Errorf("deezer API error: %s", searchResp.Error.Message)
	}

	return parseResults(searchResp.Data), nil
}

func buildQuery(query metadata.Query) string {
	escape := func(s string) string {
		return strings.ReplaceAll(s, "\"", "")
	}
	var parts []string
	if query.Title != "" {
		parts = append(parts, "track:\""+escape(query.Title)+"\"")
	}
	if query.Artist != "" {
		parts = append(parts, "artist:\""+escape(query.Artist)+"\"")
	}
	if query.Album != "" {
		parts = append(parts, "album:\""+escape(query.Album)+"\"")
	}
	return strings.Join(parts, " ")
}

func parseResults(items []trackItem) []metadata.Record {
	results := make([]metadata.Record, 0, len(items))
	for _, item := range items {
		coverURL := item.Album.CoverXL
		if coverURL == "" {
			coverURL = item.Album.CoverBig
		}

		results = append(results, metadata.Record{
			Title:       item.TitleShort,
			Artist:      item.Artist.Name,
			Album:       item.Album.Title,
			AlbumArtist: item.Artist.Name,
			ISRC:        item.ISRC,
			CoverURL:    coverURL,
			Duration:    item.Duration,
			BPM:         int(item.BPM),
		})
	}
	return results
}

// Deezer API response types

type searchResponse struct {
	Data  []trackItem `json:"data"`
	Error *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type trackItem struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	TitleShort   string    `json:"title_short"`
	TitleVersion string    `json:"title_version"`
	ISRC         string    `json:"isrc"`
	Duration     int       `json:"duration"`
	BPM          float64   `json:"bpm"`
	Artist       artist    `json:"artist"`
	Album        albumInfo `json:"album"`
}

type artist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type albumInfo struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	CoverBig string `json:"cover_big"`
	CoverXL  string `json:"cover_xl"`
}
