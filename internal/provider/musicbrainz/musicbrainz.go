package musicbrainz

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

const defaultUserAgent = "tunetag/1.0"

// Client is a MusicBrainz Web API client that implements metadata.Catalog.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
	limiter    *rate.Limiter
}

// New creates a new MusicBrainz client. MusicBrainz rejects anonymous
// clients, so userAgent should identify the application and a contact.
func New(userAgent string) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://musicbrainz.org/ws/2",
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// LookupRecording fetches a recording by MBID together with the release it
// most likely belongs to.
func (c *Client) LookupRecording(ctx context.Context, id string) (metadata.Record, error) {
	var rec recording
	path := fmt.Sprintf("/recording/%s?inc=artists+releases+media+isrcs+genres&fmt=json", url.PathEscape(id))
	if err := c.get(ctx, path, &rec); err != nil {
		return metadata.Record{}, err
	}
	return recordFromRecording(rec), nil
}

// LookupRelease fetches release level data by MBID. Track level fields
// stay empty.
func (c *Client) LookupRelease(ctx context.Context, id string) (metadata.Record, error) {
	var rel release
	path := fmt.Sprintf("/release/%s?inc=artists+labels+genres+release-groups&fmt=json", url.PathEscape(id))
	if err := c.get(ctx, path, &rel); err != nil {
		return metadata.Record{}, err
	}
	var out metadata.Record
	applyRelease(&out, rel)
	out.Genre = topGenre(rel.Genres)
	return out, nil
}

// Search queries the MusicBrainz recording search API and returns matching
// candidates in response order.
func (c *Client) Search(ctx context.Context, query metadata.Query) ([]metadata.Record, error) {
	q := buildQuery(query)
	if q == "" {
		return nil, nil
	}

	var searchResp searchResponse
	if err := c.get(ctx, "/recording?query="+url.QueryEscape(q)+"&fmt=json&limit=5", &searchResp); err != nil {
		return nil, err
	}

	results := make([]metadata.Record, 0, len(searchResp.Recordings))
	for _, rec := range searchResp.Recordings {
		results = append(results, recordFromRecording(rec))
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create musicbrainz request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("musicbrainz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("musicbrainz returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode musicbrainz response: %w", err)
	}
	return nil
}

// doWithRetry executes the request, retrying once on 429/503 after the
// server's Retry-After delay.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		retryAfter := 2
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if parsed, err := strconv.Atoi(ra); err == nil {
				retryAfter = parsed
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(retryAfter) * time.Second):
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.httpClient.Do(req.Clone(ctx))
	}

	return resp, nil
}

func buildQuery(query metadata.Query) string {
	var parts []string
	if query.Title != "" {
		parts = append(parts, fmt.Sprintf("recording:%q", query.Title))
	}
	if query.Artist != "" {
		parts = append(parts, fmt.Sprintf("artist:%q", query.Artist))
	}
	if query.Album != "" {
		parts = append(parts, fmt.Sprintf("release:%q", query.Album))
	}
	return strings.Join(parts, " AND ")
}

func recordFromRecording(rec recording) metadata.Record {
	out := metadata.Record{
		RecordingID: rec.ID,
		Title:       rec.Title,
		Artist:      joinArtistCredits(rec.ArtistCredit),
		Duration:    rec.Length / 1000,
		Genre:       topGenre(rec.Genres),
	}

	if len(rec.ISRCs) > 0 {
		out.ISRC = rec.ISRCs[0]
	}

	if len(rec.Releases) > 0 {
		rel := pickBestRelease(rec.Releases)
		applyRelease(&out, rel)

		if len(rel.Media) > 0 {
			m := rel.Media[0]
			out.DiscNumber = m.Position
			tracks := m.Track
			if len(tracks) == 0 {
				tracks = m.Tracks
			}
			if len(tracks) > 0 {
				if n, err := strconv.Atoi(tracks[0].Number); err == nil {
					out.TrackNumber = n
				}
			}
		}
	}
	return out
}

func applyRelease(out *metadata.Record, rel release) {
	out.ReleaseID = rel.ID
	out.Album = rel.Title
	if len(rel.ArtistCredit) > 0 {
		out.AlbumArtist = joinArtistCredits(rel.ArtistCredit)
	}
	out.Year = parseYear(rel.Date)
	out.ReleaseDate = rel.Date
	for _, li := range rel.LabelInfo {
		if li.Label.Name != "" {
			out.Publisher = li.Label.Name
			break
		}
	}
}

func joinArtistCredits(credits []artistCredit) string {
	var b strings.Builder
	for i, ac := range credits {
		name := ac.Name
		if name == "" {
			name = ac.Artist.Name
		}
		b.WriteString(name)
		if ac.JoinPhrase != "" {
			b.WriteString(ac.JoinPhrase)
		} else if i < len(credits)-1 {
			b.WriteString(", ")
		}
	}
	return b.String()
}

// topGenre returns the genre with the most votes, first listed on ties.
func topGenre(genres []genre) string {
	best := -1
	var name string
	for _, g := range genres {
		if g.Count > best {
			best, name = g.Count, g.Name
		}
	}
	return name
}

// pickBestRelease selects the most appropriate release for tagging.
// Prefers: Official status, Album type, no secondary types (not Compilation), earliest date.
func pickBestRelease(releases []release) release {
	best := releases[0]
	bestScore := releaseScore(best)

	for _, rel := range releases[1:] {
		s := releaseScore(rel)
		if s > bestScore || (s == bestScore && rel.Date != "" && (best.Date == "" || rel.Date < best.Date)) {
			best = rel
			bestScore = s
		}
	}
	return best
}

func releaseScore(rel release) int {
	score := 0

	if rel.Status == "Official" {
		score += 4
	}

	if rel.ReleaseGroup.PrimaryType == "Album" {
		score += 2
	}

	if len(rel.ReleaseGroup.SecondaryTypes) == 0 {
		score += 1
	}

	return score
}

func parseYear(date string) int {
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}

// MusicBrainz API response types

type searchResponse struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Length       int            `json:"length"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Releases     []release      `json:"releases"`
	ISRCs        []string       `json:"isrcs"`
	Genres       []genre        `json:"genres"`
}

type artistCredit struct {
	Name       string     `json:"name"`
	JoinPhrase string     `json:"joinphrase"`
	Artist     artistInfo `json:"artist"`
}

type artistInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	Date         string         `json:"date"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	ReleaseGroup releaseGroup   `json:"release-group"`
	Media        []media        `json:"media"`
	LabelInfo    []labelInfo    `json:"label-info"`
	Genres       []genre        `json:"genres"`
}

type releaseGroup struct {
	PrimaryType    string   `json:"primary-type"`
	SecondaryTypes []string `json:"secondary-types"`
}

type media struct {
	Position int     `json:"position"`
	Track    []track `json:"track"`
	Tracks   []track `json:"tracks"`
}

type track struct {
	Number string `json:"number"`
}

type labelInfo struct {
	Label struct {
		Name string `json:"name"`
	} `json:"label"`
}

type genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
