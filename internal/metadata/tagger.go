package metadata

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tunetag/internal/logger"
	"tunetag/internal/workpool"

	"github.com/gofrs/flock"
	"go.senan.xyz/taglib"
)

// Tag keys that taglib does not export as constants.
const (
	tagComposer    = "COMPOSER"
	tagLabel       = "LABEL"
	tagBPM         = "BPM"
	tagLyrics      = "LYRICS"
	tagComment     = "COMMENT"
	tagCopyright   = "COPYRIGHT"
	tagEncodedBy   = "ENCODEDBY"
	tagURL         = "URL"
	tagRecordingID = "MUSICBRAINZ_TRACKID"
	tagReleaseID   = "MUSICBRAINZ_ALBUMID"
)

// customTagKeys are the free-form fields read back into Record.Extra.
var customTagKeys = []string{"POPULARITY", "MOOD", "SCENE"}

var (
	// ErrUnsupportedFormat is matched by every *UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrMalformedContainer means the file is not a valid container of the
	// kind its extension promises.
	ErrMalformedContainer = errors.New("malformed audio container")
)

// UnsupportedFormatError is returned for file extensions the embedder has
// no writer for. The file is not opened.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: unsupported audio format %q", filepath.Base(e.Path), e.Ext)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// TaggingError is a failure while validating or writing a file. The
// original file is left untouched when it is returned.
type TaggingError struct {
	Path string
	Op   string
	Err  error
}

func (e *TaggingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", filepath.Base(e.Path), e.Op, e.Err)
}

func (e *TaggingError) Unwrap() error { return e.Err }

// Tagger writes Records into audio files. All file work runs in the shared
// worker pool.
type Tagger struct {
	pool    *workpool.Pool
	logger  *logger.Logger
	lockDir string
}

// NewTagger creates a Tagger that runs its file I/O in pool.
func NewTagger(pool *workpool.Pool, log *logger.Logger) *Tagger {
	return &Tagger{
		pool:    pool,
		logger:  log,
		lockDir: filepath.Join(os.TempDir(), "tunetag-locks"),
	}
}

// Supported reports whether path has an extension the tagger can write.
func Supported(path string) bool {
	_, ok := containerFor(path)
	return ok
}

// Embed writes rec and, if given, cover as the front cover image into the
// file at path. Fields that are empty in rec are left as they are in the
// file. The update is atomic: the tags are written to a copy next to the
// original, verified, and renamed over it.
func (t *Tagger) Embed(ctx context.Context, path string, rec Record, cover []byte) error {
	kind, ok := containerFor(path)
	if !ok {
		return &UnsupportedFormatError{Path: path, Ext: strings.ToLower(filepath.Ext(path))}
	}
	return t.pool.Do(ctx, func() error {
		return t.embed(path, kind, rec, cover)
	})
}

func (t *Tagger) embed(path string, kind container, rec Record, cover []byte) error {
	if err := checkContainer(path, kind); err != nil {
		return &TaggingError{Path: path, Op: "validate", Err: err}
	}

	unlock, err := t.lock(path)
	if err != nil {
		return &TaggingError{Path: path, Op: "lock", Err: err}
	}
	defer unlock()

	tmp, err := copyToTemp(path)
	if err != nil {
		return &TaggingError{Path: path, Op: "copy", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	tags := tagMap(rec)
	if len(tags) > 0 {
		if err := taglib.WriteTags(tmp, tags, 0); err != nil {
			return &TaggingError{Path: path, Op: "write tags", Err: err}
		}
	}
	if len(cover) > 0 {
		if err := taglib.WriteImage(tmp, cover); err != nil {
			return &TaggingError{Path: path, Op: "write cover", Err: err}
		}
	}

	written, err := taglib.ReadTags(tmp)
	if err != nil {
		return &TaggingError{Path: path, Op: "verify", Err: err}
	}
	if rec.Title != "" && firstTag(written, taglib.Title) != rec.Title {
		return &TaggingError{Path: path, Op: "verify", Err: fmt.Errorf("title not persisted")}
	}

	if err := os.Rename(tmp, path); err != nil {
		return &TaggingError{Path: path, Op: "replace", Err: err}
	}
	committed = true

	t.logger.Debug("  Tagged %s (%d fields, cover=%t)", filepath.Base(path), len(tags), len(cover) > 0)
	return nil
}

// lock takes an exclusive lock for path. Lock files live outside the
// library so they never show up next to the music.
func (t *Tagger) lock(path string) (func(), error) {
	if err := os.MkdirAll(t.lockDir, 0755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha1.Sum([]byte(abs))
	fl := flock.New(filepath.Join(t.lockDir, hex.EncodeToString(sum[:])+".lock"))
	if err := fl.Lock(); err != nil {
		return nil, err
	}
	return func() { fl.Unlock() }, nil
}

// copyToTemp copies path to a hidden file in the same directory, keeping
// the extension so taglib picks the right format.
func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	dst, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimSuffix(base, ext)+"-*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Chmod(info.Mode().Perm()); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// ReadTags reads the tags and front cover already embedded in path.
func (t *Tagger) ReadTags(ctx context.Context, path string) (Record, error) {
	if _, ok := containerFor(path); !ok {
		return Record{}, &UnsupportedFormatError{Path: path, Ext: strings.ToLower(filepath.Ext(path))}
	}
	return workpool.Run(ctx, t.pool, func() (Record, error) {
		tags, err := taglib.ReadTags(path)
		if err != nil {
			return Record{}, fmt.Errorf("failed to read existing tags: %w", err)
		}
		rec := recordFromTags(tags)
		if img, err := taglib.ReadImage(path); err == nil && len(img) > 0 {
			rec.Cover = img
		}
		return rec, nil
	})
}

func tagMap(rec Record) map[string][]string {
	tags := make(map[string][]string)
	set := func(key, value string) {
		if value != "" {
			tags[key] = []string{value}
		}
	}
	setInt := func(key string, n int) {
		if n > 0 {
			tags[key] = []string{strconv.Itoa(n)}
		}
	}

	set(taglib.Title, rec.Title)
	set(taglib.Artist, rec.Artist)
	set(taglib.Album, rec.Album)
	set(taglib.AlbumArtist, rec.AlbumArtist)
	setInt(taglib.TrackNumber, rec.TrackNumber)
	setInt(taglib.DiscNumber, rec.DiscNumber)
	if rec.ReleaseDate != "" {
		set(taglib.Date, rec.ReleaseDate)
	} else {
		setInt(taglib.Date, rec.Year)
	}
	set(taglib.Genre, rec.Genre)
	set(tagComposer, rec.Composer)
	set(tagLabel, rec.Publisher)
	set(taglib.ISRC, rec.ISRC)
	setInt(tagBPM, rec.BPM)
	set(tagLyrics, rec.Lyrics)
	set(tagComment, rec.Comment)
	set(tagCopyright, rec.Copyright)
	set(tagEncodedBy, rec.Encoder)
	set(tagURL, rec.SourceURL)
	set(tagRecordingID, rec.RecordingID)
	set(tagReleaseID, rec.ReleaseID)

	for k, v := range rec.Extra {
		set(strings.ToUpper(k), v)
	}
	return tags
}

func recordFromTags(tags map[string][]string) Record {
	rec := Record{
		Title:       firstTag(tags, taglib.Title),
		Artist:      firstTag(tags, taglib.Artist),
		Album:       firstTag(tags, taglib.Album),
		AlbumArtist: firstTag(tags, taglib.AlbumArtist),
		ReleaseDate: firstTag(tags, taglib.Date),
		Genre:       firstTag(tags, taglib.Genre),
		Composer:    firstTag(tags, tagComposer),
		Publisher:   firstTag(tags, tagLabel),
		ISRC:        firstTag(tags, taglib.ISRC),
		Lyrics:      firstTag(tags, tagLyrics),
		Comment:     firstTag(tags, tagComment),
		Copyright:   firstTag(tags, tagCopyright),
		Encoder:     firstTag(tags, tagEncodedBy),
		SourceURL:   firstTag(tags, tagURL),
		RecordingID: firstTag(tags, tagRecordingID),
		ReleaseID:   firstTag(tags, tagReleaseID),
	}
	rec.TrackNumber, _ = coerceIntString(firstTag(tags, taglib.TrackNumber))
	rec.DiscNumber, _ = coerceIntString(firstTag(tags, taglib.DiscNumber))
	rec.BPM, _ = coerceIntString(firstTag(tags, tagBPM))
	rec.Year = YearFrom(rec.ReleaseDate)

	for _, k := range customTagKeys {
		if v := firstTag(tags, k); v != "" {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[k] = v
		}
	}
	return rec
}

func firstTag(tags map[string][]string, key string) string {
	if vals, ok := tags[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// SubDir returns an "Artist/Album" subdirectory for organizing a tagged
// file in the library.
func SubDir(rec Record) string {
	artist := rec.AlbumArtist
	if artist == "" {
		artist = rec.Artist
		if i := strings.Index(artist, ","); i > 0 {
			artist = strings.TrimSpace(artist[:i])
		}
	}
	album := rec.Album

	if artist == "" {
		artist = "Unknown Artist"
	}
	if album == "" {
		album = "Unknown Album"
	}

	return filepath.Join(sanitizePath(artist), sanitizePath(album))
}

// sanitizePath removes or replaces characters that are problematic in file paths.
func sanitizePath(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(s)
}
