package metadata

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Merge copies every non-empty field of src into dst where dst is still
// empty. It never overwrites a field dst already has.
func Merge(dst *Record, src Record) {
	fillString(&dst.Title, src.Title)
	fillString(&dst.Artist, src.Artist)
	fillString(&dst.Album, src.Album)
	fillString(&dst.AlbumArtist, src.AlbumArtist)
	fillInt(&dst.TrackNumber, src.TrackNumber)
	fillInt(&dst.DiscNumber, src.DiscNumber)
	fillString(&dst.ReleaseDate, src.ReleaseDate)
	fillInt(&dst.Year, src.Year)
	fillString(&dst.Genre, src.Genre)
	fillInt(&dst.Duration, src.Duration)
	fillString(&dst.Composer, src.Composer)
	fillString(&dst.Publisher, src.Publisher)
	fillString(&dst.ISRC, src.ISRC)
	fillInt(&dst.BPM, src.BPM)
	fillString(&dst.Lyrics, src.Lyrics)
	fillString(&dst.Comment, src.Comment)
	fillString(&dst.Copyright, src.Copyright)
	fillString(&dst.Encoder, src.Encoder)
	fillString(&dst.SourceURL, src.SourceURL)
	fillString(&dst.RecordingID, src.RecordingID)
	fillString(&dst.ReleaseID, src.ReleaseID)
	fillString(&dst.CoverURL, src.CoverURL)
	fillString(&dst.Description, src.Description)

	if len(dst.Cover) == 0 && len(src.Cover) > 0 {
		dst.Cover = append([]byte(nil), src.Cover...)
	}

	for k, v := range src.Extra {
		if v == "" || dst.Extra[k] != "" {
			continue
		}
		if dst.Extra == nil {
			dst.Extra = make(map[string]string)
		}
		dst.Extra[k] = v
	}
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func fillInt(dst *int, src int) {
	if *dst == 0 && src != 0 {
		*dst = src
	}
}

// IsEmpty reports whether rec carries no information at all.
func (r Record) IsEmpty() bool {
	var probe Record
	Merge(&probe, r)
	return reflect.DeepEqual(probe, Record{})
}

// hintKeys maps the hint names used by fetchers and upload handlers onto
// record fields. Several aliases may target the same field; the first one
// present wins.
var hintKeys = []struct {
	names []string
	set   func(r *Record, v any)
}{
	{[]string{"title", "track_title"}, setString(func(r *Record) *string { return &r.Title })},
	{[]string{"artist", "performer", "creator", "uploader"}, setString(func(r *Record) *string { return &r.Artist })},
	{[]string{"album"}, setString(func(r *Record) *string { return &r.Album })},
	{[]string{"album_artist", "albumartist"}, setString(func(r *Record) *string { return &r.AlbumArtist })},
	{[]string{"track_number", "tracknumber", "track"}, setInt(func(r *Record) *int { return &r.TrackNumber })},
	{[]string{"disc_number", "discnumber", "disc"}, setInt(func(r *Record) *int { return &r.DiscNumber })},
	{[]string{"release_date", "date"}, setString(func(r *Record) *string { return &r.ReleaseDate })},
	{[]string{"year", "release_year"}, setInt(func(r *Record) *int { return &r.Year })},
	{[]string{"genre"}, setString(func(r *Record) *string { return &r.Genre })},
	{[]string{"duration"}, setInt(func(r *Record) *int { return &r.Duration })},
	{[]string{"composer"}, setString(func(r *Record) *string { return &r.Composer })},
	{[]string{"publisher", "label"}, setString(func(r *Record) *string { return &r.Publisher })},
	{[]string{"isrc"}, setString(func(r *Record) *string { return &r.ISRC })},
	{[]string{"bpm", "tempo"}, setInt(func(r *Record) *int { return &r.BPM })},
	{[]string{"lyrics"}, setString(func(r *Record) *string { return &r.Lyrics })},
	{[]string{"comment"}, setString(func(r *Record) *string { return &r.Comment })},
	{[]string{"copyright"}, setString(func(r *Record) *string { return &r.Copyright })},
	{[]string{"encoder", "encoded_by"}, setString(func(r *Record) *string { return &r.Encoder })},
	{[]string{"source_url", "url", "webpage_url"}, setString(func(r *Record) *string { return &r.SourceURL })},
	{[]string{"recording_id", "musicbrainz_trackid"}, setString(func(r *Record) *string { return &r.RecordingID })},
	{[]string{"release_id", "musicbrainz_albumid"}, setString(func(r *Record) *string { return &r.ReleaseID })},
	{[]string{"cover_url", "thumbnail"}, setString(func(r *Record) *string { return &r.CoverURL })},
	{[]string{"description"}, setString(func(r *Record) *string { return &r.Description })},
}

var knownHints = func() map[string]bool {
	m := make(map[string]bool)
	for _, hk := range hintKeys {
		for _, n := range hk.names {
			m[n] = true
		}
	}
	return m
}()

func setString(field func(*Record) *string) func(*Record, any) {
	return func(r *Record, v any) {
		if s := coerceString(v); s != "" {
			*field(r) = s
		}
	}
}

func setInt(field func(*Record) *int) func(*Record, any) {
	return func(r *Record, v any) {
		if n, ok := CoerceInt(v); ok {
			*field(r) = n
		}
	}
}

// FromHints converts loosely typed hints into a Record. Values that cannot
// be coerced are dropped. Unknown keys with scalar values land in Extra.
func FromHints(h Hints) Record {
	var rec Record
	for _, hk := range hintKeys {
		for _, name := range hk.names {
			v, ok := h[name]
			if !ok || v == nil {
				continue
			}
			before := rec
			hk.set(&rec, v)
			if !reflect.DeepEqual(before, rec) {
				break
			}
		}
	}

	for k, v := range h {
		if knownHints[k] || v == nil {
			continue
		}
		if s := coerceString(v); s != "" {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[strings.ToUpper(k)] = s
		}
	}
	return rec
}

// CoerceInt turns 5, 5.0, "5", "5/12" and ["5"] into 5. Anything else,
// including "unknown", reports false.
func CoerceInt(v any) (int, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		return x, true
	case int8, int16, int32, int64:
		return int(reflect.ValueOf(x).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return int(reflect.ValueOf(x).Uint()), true
	case float32:
		return coerceFloat(float64(x))
	case float64:
		return coerceFloat(x)
	case string:
		return coerceIntString(x)
	case []string:
		if len(x) == 0 {
			return 0, false
		}
		return coerceIntString(x[0])
	case []any:
		if len(x) == 0 {
			return 0, false
		}
		return CoerceInt(x[0])
	case fmt.Stringer:
		return coerceIntString(x.String())
	}
	return 0, false
}

func coerceFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// coerceIntString parses the leading run of digits, so "5/12" is 5 and
// "03" is 3.
func coerceIntString(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []string:
		if len(x) == 0 {
			return ""
		}
		return strings.TrimSpace(x[0])
	case []any:
		if len(x) == 0 {
			return ""
		}
		return coerceString(x[0])
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return fmt.Sprint(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	}
	return ""
}
