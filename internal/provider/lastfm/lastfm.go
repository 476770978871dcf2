package lastfm

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

	"tunetag/internal/metadata"
)

// errTrackNotFound is Last.fm's error code for an unknown track.
const errTrackNotFound = 6

// maxGenreTags limits how many top tags end up in the genre field.
const maxGenreTags = 3

// Client is a Last.fm API client used as the secondary enrichment source.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
}

// New creates a new Last.fm client.
func New(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://ws.audioscrobbler.com/2.0/",
		apiKey:     apiKey,
	}
}

func (c *Client) Name() string { return "lastfm" }

// Enrich calls track.getInfo and returns corrected names, album, duration
// and genre tags. An unknown track yields an empty record.
func (c *Client) Enrich(ctx context.Context, q metadata.Query) (metadata.Record, error) {
	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	switch {
	case q.RecordingID != "":
		params.Set("mbid", q.RecordingID)
	case q.Artist != "" && q.Title != "":
		params.Set("artist", q.Artist)
		params.Set("track", q.Title)
		params.Set("autocorrect", "1")
	default:
		return metadata.Record{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("failed to create lastfm request: %w", err)
	}
	req.Header.Set("User-Agent", "tunetag/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("lastfm request failed: %w", err)
	}
	defer resp.Body.Close()

	var info trackInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		if resp.StatusCode != http.StatusOK {
			return metadata.Record{}, fmt.Errorf("lastfm returned %d", resp.StatusCode)
		}
		return metadata.Record{}, fmt.Errorf("failed to decode lastfm response: %w", err)
	}
	if info.Error == errTrackNotFound {
		return metadata.Record{}, nil
	}
	if info.Error != 0 {
		return metadata.Record{}, fmt.Errorf("lastfm API error %d: %s", info.Error, info.Message)
	}

	return recordFromTrack(info.Track), nil
}

func recordFromTrack(tr track) metadata.Record {
	rec := metadata.Record{
		Title:       tr.Name,
		Artist:      tr.Artist.Name,
		Album:       tr.Album.Title,
		RecordingID: tr.MBID,
	}
	if ms, err := strconv.Atoi(tr.Duration); err == nil {
		rec.Duration = ms / 1000
	}

	var genres []string
	for _, tag := range tr.TopTags.Tag {
		if tag.Name == "" {
			continue
		}
		genres = append(genres, tag.Name)
		if len(genres) == maxGenreTags {
			break
		}
	}
	rec.Genre = strings.Join(genres, ", ")
	return rec
}

// Last.fm API response types

type trackInfoResponse struct {
	Track   track  `json:"track"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type track struct {
	Name     string `json:"name"`
	MBID     string `json:"mbid"`
	Duration string `json:"duration"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
	TopTags struct {
		Tag []struct {
			Name string `json:"name"`
		} `json:"tag"`
	} `json:"toptags"`
}
