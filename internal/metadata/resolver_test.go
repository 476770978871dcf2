package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tunetag/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTags struct {
	rec Record
	err error
}

func (f *fakeTags) ReadTags(_ context.Context, _ string) (Record, error) {
	return f.rec.Clone(), f.err
}

type fakeIdentifier struct {
	matches []Match
	err     error
	calls   int
}

func (f *fakeIdentifier) Identify(_ context.Context, _ string) ([]Match, error) {
	f.calls++
	return f.matches, f.err
}

type fakeCatalog struct {
	recording   Record
	release     Record
	search      []Record
	err         error
	recordingID string
	releaseID   string
	searched    *Query
}

func (f *fakeCatalog) LookupRecording(_ context.Context, id string) (Record, error) {
	f.recordingID = id
	return f.recording, f.err
}

func (f *fakeCatalog) LookupRelease(_ context.Context, id string) (Record, error) {
	f.releaseID = id
	return f.release, f.err
}

func (f *fakeCatalog) Search(_ context.Context, q Query) ([]Record, error) {
	f.searched = &q
	return f.search, f.err
}

type fakeCovers struct {
	front      []byte
	downloaded []byte
	err        error
	frontID    string
	url        string
}

func (f *fakeCovers) Front(_ context.Context, id string) ([]byte, error) {
	f.frontID = id
	return f.front, f.err
}

func (f *fakeCovers) Download(_ context.Context, url string) ([]byte, error) {
	f.url = url
	return f.downloaded, f.err
}

type fakeEnricher struct {
	name  string
	rec   Record
	err   error
	panic bool
	calls int
}

func (f *fakeEnricher) Name() string { return f.name }

func (f *fakeEnricher) Enrich(_ context.Context, _ Query) (Record, error) {
	f.calls++
	if f.panic {
		panic("nil map")
	}
	return f.rec, f.err
}

type fakeLyrics struct{ text string }

func (f fakeLyrics) Lyrics(_ context.Context, _ Query) (string, error) { return f.text, nil }

func enabled() Options {
	return Options{Enable: true, MinConfidence: 0.5, PreferExisting: true, FetchCoverArt: true}
}

func TestResolve_EndToEndScenario(t *testing.T) {
	catalog := &fakeCatalog{search: []Record{{Title: "Song", Artist: "Band", Album: "LP", ReleaseDate: "2001-05-01"}}}
	r := NewResolver(Sources{Tags: &fakeTags{}, Catalog: catalog}, enabled(), logger.New(false))

	rec, warnings := r.Resolve(context.Background(), "/music/song.mp3", Hints{"title": "Song", "artist": "Band"})

	assert.Empty(t, warnings)
	assert.Equal(t, "Song", rec.Title)
	assert.Equal(t, "Band", rec.Artist)
	assert.Equal(t, "LP", rec.Album)
	assert.Equal(t, "2001-05-01", rec.ReleaseDate)
	require.NotNil(t, catalog.searched)
	assert.Equal(t, "Song", catalog.searched.Title)

	assert.Equal(t, 2001, Normalize(rec).Year)
}

func TestResolve_PrecedenceLaw(t *testing.T) {
	existing := Record{Title: "Existing Title", Artist: "Band"}
	catalog := func() *fakeCatalog {
		return &fakeCatalog{search: []Record{{Title: "Catalog Title", Artist: "Band", Album: "LP"}}}
	}

	t.Run("prefer existing tags", func(t *testing.T) {
		opts := enabled()
		opts.PreferExisting = true
		r := NewResolver(Sources{Tags: &fakeTags{rec: existing}, Catalog: catalog()}, opts, logger.New(false))

		rec, _ := r.Resolve(context.Background(), "a.mp3", nil)
		assert.Equal(t, "Existing Title", rec.Title)
		assert.Equal(t, "LP", rec.Album)
	})

	t.Run("prefer lookups", func(t *testing.T) {
		opts := enabled()
		opts.PreferExisting = false
		r := NewResolver(Sources{Tags: &fakeTags{rec: existing}, Catalog: catalog()}, opts, logger.New(false))

		rec, _ := r.Resolve(context.Background(), "a.mp3", nil)
		assert.Equal(t, "Catalog Title", rec.Title)
		assert.Equal(t, "Band", rec.Artist)
		assert.Equal(t, "LP", rec.Album)
	})
}

func TestResolve_HintsVersusExistingTags(t *testing.T) {
	existing := Record{Title: "Tagged", Genre: "Rock"}
	hints := Hints{"title": "Hinted", "album": "From Hint"}

	opts := Options{Enable: false, PreferExisting: true}
	rec, _ := NewResolver(Sources{Tags: &fakeTags{rec: existing}}, opts, logger.New(false)).
		Resolve(context.Background(), "a.mp3", hints)
	assert.Equal(t, "Tagged", rec.Title)
	assert.Equal(t, "From Hint", rec.Album)
	assert.Equal(t, "Rock", rec.Genre)

	opts.PreferExisting = false
	rec, _ = NewResolver(Sources{Tags: &fakeTags{rec: existing}}, opts, logger.New(false)).
		Resolve(context.Background(), "a.mp3", hints)
	assert.Equal(t, "Hinted", rec.Title)
	assert.Equal(t, "Rock", rec.Genre)
}

func TestResolve_ConfidenceGating(t *testing.T) {
	id := &fakeIdentifier{matches: []Match{{Score: 0.3, RecordingID: "rec-1", ReleaseID: "rel-1", Title: "T", Artist: "A"}}}
	r := NewResolver(Sources{Identifier: id}, enabled(), logger.New(false))

	rec, warnings := r.Resolve(context.Background(), "/tmp/low.mp3", nil)

	assert.Empty(t, rec.RecordingID)
	assert.Empty(t, rec.ReleaseID)
	assert.Empty(t, rec.Title)
	require.Len(t, warnings, 1)
	assert.Equal(t, "low.mp3", warnings[0].Item)
	assert.Contains(t, warnings[0].Message, "0.30")
}

func TestResolve_IdentificationDrivesCatalogLookup(t *testing.T) {
	id := &fakeIdentifier{matches: []Match{
		{Score: 0.7, RecordingID: "rec-low"},
		{Score: 0.95, RecordingID: "rec-1", ReleaseID: "rel-1", Title: "Fallback", Artist: "Someone"},
		{Score: 0.95, RecordingID: "rec-tie"},
	}}
	catalog := &fakeCatalog{
		recording: Record{Title: "Real Title", Artist: "Real Artist", Album: "Album", ReleaseID: "rel-1"},
		search:    []Record{{Title: "should not be used"}},
	}
	covers := &fakeCovers{front: []byte{1, 2, 3}}

	r := NewResolver(Sources{Identifier: id, Catalog: catalog, Covers: covers}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", nil)

	assert.Empty(t, warnings)
	assert.Equal(t, "rec-1", catalog.recordingID)
	assert.Nil(t, catalog.searched, "text search must not run when an identifier is known")
	assert.Equal(t, "Fallback", rec.Title, "identification outranks the catalog")
	assert.Equal(t, "Album", rec.Album)
	assert.Equal(t, "rel-1", covers.frontID)
	assert.Equal(t, []byte{1, 2, 3}, rec.Cover)
}

func TestResolve_ReleaseLookupWithoutRecording(t *testing.T) {
	catalog := &fakeCatalog{release: Record{Album: "Only Release"}}
	r := NewResolver(Sources{Tags: &fakeTags{rec: Record{ReleaseID: "rel-9"}}, Catalog: catalog}, enabled(), logger.New(false))

	rec, _ := r.Resolve(context.Background(), "x.mp3", nil)
	assert.Equal(t, "rel-9", catalog.releaseID)
	assert.Equal(t, "Only Release", rec.Album)
}

func TestResolve_AdapterFailuresBecomeWarnings(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("503 service unavailable")}
	secondary := &fakeEnricher{name: "lastfm", panic: true}
	tertiary := &fakeEnricher{name: "discogs", rec: Record{Genre: "Electronic"}}

	r := NewResolver(Sources{Catalog: catalog, Secondary: secondary, Tertiary: tertiary}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "/x/track.mp3", Hints{"title": "T", "artist": "A"})

	require.Len(t, warnings, 2)
	assert.True(t, strings.HasPrefix(warnings[0].Message, "musicbrainz: "), warnings[0].Message)
	assert.Contains(t, warnings[1].Message, "lastfm")
	assert.Contains(t, warnings[1].Message, "panic")
	for _, w := range warnings {
		assert.Equal(t, "track.mp3", w.Item)
	}
	assert.Equal(t, "Electronic", rec.Genre)
}

func TestResolve_SecondaryOutranksTertiary(t *testing.T) {
	secondary := &fakeEnricher{name: "lastfm", rec: Record{Genre: "indie, rock"}}
	tertiary := &fakeEnricher{name: "discogs", rec: Record{Genre: "Rock", Year: 2004, CoverURL: "https://img/x.jpg"}}
	covers := &fakeCovers{downloaded: []byte{9}}

	r := NewResolver(Sources{Secondary: secondary, Tertiary: tertiary, Covers: covers}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T", "artist": "A", "album": "B"})

	assert.Empty(t, warnings)
	assert.Equal(t, "indie, rock", rec.Genre)
	assert.Equal(t, 2004, rec.Year)
	assert.Equal(t, "https://img/x.jpg", covers.url)
	assert.Equal(t, []byte{9}, rec.Cover)
}

func TestResolve_SkipsStepsWithoutInputs(t *testing.T) {
	catalog := &fakeCatalog{search: []Record{{Title: "x"}}}
	secondary := &fakeEnricher{name: "lastfm"}
	tertiary := &fakeEnricher{name: "discogs"}

	r := NewResolver(Sources{Catalog: catalog, Secondary: secondary, Tertiary: tertiary}, enabled(), logger.New(false))
	_, warnings := r.Resolve(context.Background(), "x.mp3", Hints{"genre": "Jazz"})

	assert.Empty(t, warnings)
	assert.Nil(t, catalog.searched)
	assert.Zero(t, secondary.calls)
	assert.Zero(t, tertiary.calls)
}

func TestResolve_DisabledSkipsLookups(t *testing.T) {
	id := &fakeIdentifier{matches: []Match{{Score: 1, RecordingID: "r"}}}
	r := NewResolver(Sources{Identifier: id}, Options{Enable: false}, logger.New(false))

	rec, _ := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T"})
	assert.Zero(t, id.calls)
	assert.Equal(t, "T", rec.Title)
}

func TestResolve_TagReadFailureIsWarning(t *testing.T) {
	r := NewResolver(Sources{Tags: &fakeTags{err: errors.New("invalid file")}}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T"})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "tags: invalid file")
	assert.Equal(t, "T", rec.Title)
}

func TestResolve_LyricsFillOnlyWhenMissing(t *testing.T) {
	opts := enabled()
	opts.FetchLyrics = true
	r := NewResolver(Sources{Lyrics: fakeLyrics{text: "la la"}}, opts, logger.New(false))

	rec, _ := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T", "artist": "A"})
	assert.Equal(t, "la la", rec.Lyrics)

	rec, _ = r.Resolve(context.Background(), "x.mp3", Hints{"title": "T", "artist": "A", "lyrics": "mine"})
	assert.Equal(t, "mine", rec.Lyrics)
}

type slowCatalog struct{ fakeCatalog }

func (s *slowCatalog) Search(ctx context.Context, _ Query) ([]Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolve_AdapterTimeout(t *testing.T) {
	opts := enabled()
	opts.RequestTimeout = 20 * time.Millisecond
	r := NewResolver(Sources{Catalog: &slowCatalog{}}, opts, logger.New(false))

	_, warnings := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T", "artist": "A"})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "deadline exceeded")
}

func TestResolve_ZeroThresholdKeepsWeakIdentification(t *testing.T) {
	id := &fakeIdentifier{matches: []Match{{Score: 0.3, RecordingID: "rec-weak", Title: "Weak"}}}
	opts := enabled()
	opts.MinConfidence = 0

	r := NewResolver(Sources{Identifier: id}, opts, logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", nil)

	assert.Empty(t, warnings)
	assert.Equal(t, "rec-weak", rec.RecordingID)
	assert.Equal(t, "Weak", rec.Title)
}

func TestResolve_ThresholdDiscardsWeakIdentification(t *testing.T) {
	id := &fakeIdentifier{matches: []Match{{Score: 0.3, RecordingID: "rec-weak"}}}

	r := NewResolver(Sources{Identifier: id}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", nil)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "below threshold 0.50")
	assert.Empty(t, rec.RecordingID)
}

func TestResolve_UnrelatedSearchResultIsRejected(t *testing.T) {
	catalog := &fakeCatalog{search: []Record{{
		Title: "Completely Different", Artist: "Someone Else", Album: "Wrong LP",
		ReleaseID: "wrong-rel", ReleaseDate: "1970",
	}}}
	covers := &fakeCovers{front: []byte{1}}

	r := NewResolver(Sources{Catalog: catalog, Covers: covers}, enabled(), logger.New(false))
	rec, warnings := r.Resolve(context.Background(), "x.mp3", Hints{"title": "Song", "artist": "Band"})

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "keeping original tags")
	assert.Equal(t, "Song", rec.Title)
	assert.Empty(t, rec.Album)
	assert.Empty(t, rec.ReleaseID)
	assert.Empty(t, rec.ReleaseDate)
	assert.Empty(t, covers.frontID)
	assert.Nil(t, rec.Cover)
}

func TestResolve_SecondaryNeedsArtistAndTitle(t *testing.T) {
	secondary := &fakeEnricher{name: "lastfm", rec: Record{Genre: "rock"}}
	r := NewResolver(Sources{Secondary: secondary}, enabled(), logger.New(false))

	_, _ = r.Resolve(context.Background(), "x.mp3", Hints{"title": "Only Title"})
	assert.Zero(t, secondary.calls)

	_, _ = r.Resolve(context.Background(), "x.mp3", Hints{"artist": "Only Artist"})
	assert.Zero(t, secondary.calls)

	rec, _ := r.Resolve(context.Background(), "x.mp3", Hints{"title": "T", "artist": "A"})
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, "rock", rec.Genre)
}
