package metadata

import (
	"context"
	"fmt"
)

// Record is the canonical, sparse metadata for one audio file. A zero value
// in any field means "unknown".
type Record struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	DiscNumber  int    `json:"disc_number,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Year        int    `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Duration    int    `json:"duration,omitempty"` // seconds
	Composer    string `json:"composer,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	ISRC        string `json:"isrc,omitempty"`
	BPM         int    `json:"bpm,omitempty"`
	Lyrics      string `json:"lyrics,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
	Encoder     string `json:"encoder,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	RecordingID string `json:"recording_id,omitempty"`
	ReleaseID   string `json:"release_id,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	Cover       []byte `json:"-"`
	Description string `json:"description,omitempty"`

	// Extra carries custom tag fields (POPULARITY, MOOD, ...). Keys are
	// upper case tag names.
	Extra map[string]string `json:"extra,omitempty"`
}

// Hints is what a fetcher or upload handler knows about a file before any
// lookup. Values may be strings, numbers or single-element lists.
type Hints map[string]any

// Query is the input shared by catalog search and the enrichment sources.
type Query struct {
	Title       string
	Artist      string
	Album       string
	RecordingID string
}

// QueryFrom builds a Query from what rec currently knows.
func QueryFrom(rec Record) Query {
	return Query{
		Title:       rec.Title,
		Artist:      rec.Artist,
		Album:       rec.Album,
		RecordingID: rec.RecordingID,
	}
}

// Match is one candidate returned by acoustic identification.
type Match struct {
	Score       float64
	RecordingID string
	ReleaseID   string
	Title       string
	Artist      string
}

// Identifier fingerprints a file and returns ranked identification
// candidates, best first.
type Identifier interface {
	Identify(ctx context.Context, path string) ([]Match, error)
}

// Catalog is a bibliographic music database.
type Catalog interface {
	LookupRecording(ctx context.Context, id string) (Record, error)
	LookupRelease(ctx context.Context, id string) (Record, error)
	Search(ctx context.Context, q Query) ([]Record, error)
}

// CoverSource fetches cover images. Front returns nil bytes and no error
// when a release has no cover.
type CoverSource interface {
	Front(ctx context.Context, releaseID string) ([]byte, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Enricher fills in missing fields from a secondary source. An empty
// Record with a nil error means "nothing found".
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, q Query) (Record, error)
}

// LyricsSource looks up lyrics for a track.
type LyricsSource interface {
	Lyrics(ctx context.Context, q Query) (string, error)
}

// TagReader reads the tags already embedded in a file.
type TagReader interface {
	ReadTags(ctx context.Context, path string) (Record, error)
}

// AdapterError is a failure inside one source adapter. The resolver turns
// it into a warning and carries on with the next step.
type AdapterError struct {
	Source string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
