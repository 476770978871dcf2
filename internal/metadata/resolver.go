package metadata

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"tunetag/internal/logger"
	"tunetag/internal/report"
)

const defaultRequestTimeout = 10 * time.Second

// Sources are the adapters the resolver may consult. A nil source is
// treated as "not configured" and its step is skipped.
type Sources struct {
	Tags       TagReader
	Identifier Identifier
	Catalog    Catalog
	Covers     CoverSource
	Secondary  Enricher
	Tertiary   Enricher
	Lyrics     LyricsSource
}

// Options are the lookup switches from the metadata_lookup config section.
type Options struct {
	Enable         bool
	MinConfidence  float64
	PreferExisting bool
	FetchCoverArt  bool
	FetchLyrics    bool
	RequestTimeout time.Duration
}

// Resolver fuses existing tags, caller hints and the configured sources
// into one Record per file.
type Resolver struct {
	src    Sources
	opts   Options
	logger *logger.Logger
}

// NewResolver creates a Resolver. MinConfidence is used as given, so 0
// accepts every identification. A zero RequestTimeout uses 10s.
func NewResolver(src Sources, opts Options, log *logger.Logger) *Resolver {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Resolver{src: src, opts: opts, logger: log}
}

// Resolve builds the metadata record for path. It never fails: every
// problem along the way comes back as a warning naming the file and the
// source that caused it.
//
// Steps run strictly in order: existing tags, hints, acoustic
// identification, catalog, cover art, secondary enrichment, tertiary
// enrichment, lyrics, remote cover download. Every merge after the hints
// only fills fields that are still empty.
func (r *Resolver) Resolve(ctx context.Context, path string, hints Hints) (Record, []report.Warning) {
	item := filepath.Base(path)
	var warnings []report.Warning
	warn := func(err error) {
		r.logger.Debug("  %s: %v", item, err)
		warnings = append(warnings, report.Warning{Item: item, Message: err.Error()})
	}

	var existing Record
	if r.src.Tags != nil {
		rec, err := invoke(ctx, 0, "tags", func(ctx context.Context) (Record, error) {
			return r.src.Tags.ReadTags(ctx, path)
		})
		if err != nil {
			warn(err)
		} else {
			existing = rec
		}
	}

	// With prefer_existing_tags the file's own tags outrank everything.
	// Otherwise hints lead and the old tags only fill what the lookups
	// could not.
	var rec, demoted Record
	if r.opts.PreferExisting {
		rec = existing.Clone()
		Merge(&rec, FromHints(hints))
	} else {
		rec = FromHints(hints)
		demoted = existing
	}
	view := func() Record {
		v := rec.Clone()
		Merge(&v, demoted)
		return v
	}

	if !r.opts.Enable {
		Merge(&rec, demoted)
		return rec, warnings
	}

	if r.src.Identifier != nil {
		if frag, err := r.identify(ctx, path); err != nil {
			warn(err)
		} else {
			Merge(&rec, frag)
		}
	}

	if r.src.Catalog != nil {
		if frag, err := r.lookupCatalog(ctx, view()); err != nil {
			warn(err)
		} else {
			Merge(&rec, frag)
		}
	}

	if v := view(); r.opts.FetchCoverArt && r.src.Covers != nil && len(v.Cover) == 0 && v.ReleaseID != "" {
		cover, err := invoke(ctx, r.opts.RequestTimeout, "coverart", func(ctx context.Context) ([]byte, error) {
			return r.src.Covers.Front(ctx, v.ReleaseID)
		})
		if err != nil {
			warn(err)
		} else if len(cover) > 0 {
			rec.Cover = cover
		}
	}

	// track.getInfo needs a recording MBID or both artist and title.
	if v := view(); r.src.Secondary != nil && (v.RecordingID != "" || (v.Artist != "" && v.Title != "")) {
		r.enrich(ctx, r.src.Secondary, &rec, v, warn)
	}

	if v := view(); r.src.Tertiary != nil && (v.Artist != "" || v.Album != "") {
		r.enrich(ctx, r.src.Tertiary, &rec, v, warn)
	}

	if v := view(); r.opts.FetchLyrics && r.src.Lyrics != nil && v.Lyrics == "" && v.Artist != "" && v.Title != "" {
		text, err := invoke(ctx, r.opts.RequestTimeout, "lyrics", func(ctx context.Context) (string, error) {
			return r.src.Lyrics.Lyrics(ctx, QueryFrom(v))
		})
		if err != nil {
			warn(err)
		} else {
			rec.Lyrics = text
		}
	}

	if v := view(); r.opts.FetchCoverArt && r.src.Covers != nil && len(v.Cover) == 0 && v.CoverURL != "" {
		cover, err := invoke(ctx, r.opts.RequestTimeout, "cover-download", func(ctx context.Context) ([]byte, error) {
			return r.src.Covers.Download(ctx, v.CoverURL)
		})
		if err != nil {
			warn(err)
		} else if len(cover) > 0 {
			rec.Cover = cover
		}
	}

	Merge(&rec, demoted)
	return rec, warnings
}

func (r *Resolver) identify(ctx context.Context, path string) (Record, error) {
	matches, err := invoke(ctx, r.opts.RequestTimeout, "acoustid", func(ctx context.Context) ([]Match, error) {
		return r.src.Identifier.Identify(ctx, path)
	})
	if err != nil {
		return Record{}, err
	}

	best, ok := BestMatch(matches)
	if !ok {
		r.logger.Debug("  No acoustic match for %s", filepath.Base(path))
		return Record{}, nil
	}
	if best.Score < r.opts.MinConfidence {
		return Record{}, &AdapterError{
			Source: "acoustid",
			Err:    fmt.Errorf("identification score %.2f below threshold %.2f, result discarded", best.Score, r.opts.MinConfidence),
		}
	}

	r.logger.Debug("  Identified %q by %q (score %.2f)", best.Title, best.Artist, best.Score)
	return Record{
		RecordingID: best.RecordingID,
		ReleaseID:   best.ReleaseID,
		Title:       best.Title,
		Artist:      best.Artist,
	}, nil
}

// lookupCatalog prefers identifier lookups; free-text search only runs when
// no identifier is known because it is ambiguous.
func (r *Resolver) lookupCatalog(ctx context.Context, v Record) (Record, error) {
	switch {
	case v.RecordingID != "":
		return invoke(ctx, r.opts.RequestTimeout, "musicbrainz", func(ctx context.Context) (Record, error) {
			return r.src.Catalog.LookupRecording(ctx, v.RecordingID)
		})
	case v.ReleaseID != "":
		return invoke(ctx, r.opts.RequestTimeout, "musicbrainz", func(ctx context.Context) (Record, error) {
			return r.src.Catalog.LookupRelease(ctx, v.ReleaseID)
		})
	case v.Artist != "" && v.Title != "":
		q := NormalizeQuery(v.Title, v.Artist)
		candidates, err := invoke(ctx, r.opts.RequestTimeout, "musicbrainz", func(ctx context.Context) ([]Record, error) {
			return r.src.Catalog.Search(ctx, q)
		})
		if err != nil || len(candidates) == 0 {
			return Record{}, err
		}
		best, ok := PickCandidate(q, candidates)
		if !ok {
			return Record{}, &AdapterError{
				Source: "musicbrainz",
				Err:    fmt.Errorf("no search result close to %q by %q, keeping original tags", q.Title, q.Artist),
			}
		}
		r.logger.Debug("  Catalog match %q by %q", best.Title, best.Artist)
		return best, nil
	}
	return Record{}, nil
}

func (r *Resolver) enrich(ctx context.Context, e Enricher, rec *Record, v Record, warn func(error)) {
	frag, err := invoke(ctx, r.opts.RequestTimeout, e.Name(), func(ctx context.Context) (Record, error) {
		return e.Enrich(ctx, QueryFrom(v))
	})
	if err != nil {
		warn(err)
		return
	}
	Merge(rec, frag)
}

// invoke runs one adapter call with its own timeout. Errors and panics come
// back as *AdapterError tagged with source.
func invoke[T any](ctx context.Context, timeout time.Duration, source string, fn func(ctx context.Context) (T, error)) (v T, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			var zero T
			v = zero
			err = &AdapterError{Source: source, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	v, err = fn(ctx)
	if err != nil {
		if _, ok := err.(*AdapterError); ok {
			return v, err
		}
		return v, &AdapterError{Source: source, Err: err}
	}
	return v, nil
}

// Clone returns a copy of r that shares no maps or slices with it.
func (r Record) Clone() Record {
	out := r
	if r.Cover != nil {
		out.Cover = append([]byte(nil), r.Cover...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
