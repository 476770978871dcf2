package itunes

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

// Client is an iTunes Search API client. It serves as a tertiary
// enrichment source.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
}

// New creates a new iTunes client.
func New(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "tunetag/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://itunes.apple.com/search",
		userAgent:  userAgent,
	}
}

func (c *Client) Name() string { return "itunes" }

// Enrich returns the closest iTunes result for q, or an empty record when
// nothing is close enough.
func (c *Client) Enrich(ctx context.Context, q metadata.Query) (metadata.Record, error) {
	results, err := c.Search(ctx, q)
	if err != nil {
		return metadata.Record{}, err
	}
	best, _ := metadata.PickCandidate(q, results)
	return best, nil
}

// Search queries the iTunes Search API and returns matching tracks.
func (c *Client) Search(ctx context.Context, query metadata.Query) ([]metadata.Record, error) {
	term := buildTerm(query)
	if term == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", "5")

	reqURL := fmt.Sprintf("%s?%s", c.apiURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create itunes request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("itunes search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("itunes search returned %d: %s", resp.StatusCode, body)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode itunes response: %w", err)
	}

	return parseResults(searchResp.Results), nil
}

func buildTerm(query metadata.Query) string {
	var parts []string
	if query.Title != "" {
		parts = append(parts, query.Title)
	} else if query.Album != "" {
		parts = append(parts, query.Album)
	}
	if query.Artist != "" {
		parts = append(parts, query.Artist)
	}
	return strings.Join(parts, " ")
}

func parseResults(items []resultItem) []metadata.Record {
	results := make([]metadata.Record, 0, len(items))
	for _, item := range items {
		coverURL := item.ArtworkURL100
		// Upgrade to 600x600 artwork
		if coverURL != "" {
			coverURL = strings.Replace(coverURL, "100x100", "600x600", 1)
		}

		results = append(results, metadata.Record{
			Title:       item.TrackName,
			Artist:      item.ArtistName,
			Album:       item.CollectionName,
			AlbumArtist: item.ArtistName,
			Genre:       item.PrimaryGenreName,
			TrackNumber: item.TrackNumber,
			DiscNumber:  item.DiscNumber,
			CoverURL:    coverURL,
			Duration:    item.TrackTimeMillis / 1000,
			ReleaseDate: releaseDay(item.ReleaseDate),
			Copyright:   item.Copyright,
		})
	}
	return results
}

// releaseDay trims an RFC 3339 timestamp to its date part.
func releaseDay(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// iTunes Search API response types

type searchResponse struct {
	ResultCount int          `json:"resultCount"`
	Results     []resultItem `json:"results"`
}

type resultItem struct {
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	CollectionName   string `json:"collectionName"`
	PrimaryGenreName string `json:"primaryGenreName"`
	TrackNumber      int    `json:"trackNumber"`
	DiscNumber       int    `json:"discNumber"`
	TrackTimeMillis  int    `json:"trackTimeMillis"`
	ArtworkURL100    string `json:"artworkUrl100"`
	ReleaseDate      string `json:"releaseDate"`
	Copyright        string `json:"copyright"`
}
