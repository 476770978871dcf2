package metadata

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Patterns to remove from YouTube titles
var titleCleanupPatterns = []*regexp.Regexp{
	// Parenthesized suffixes
	regexp.MustCompile(`(?i)\s*\(official\s+(music\s+)?video\)`),
	regexp.MustCompile(`(?i)\s*\(official\s+audio\)`),
	regexp.MustCompile(`(?i)\s*\(official\s+lyric\s+video\)`),
	regexp.MustCompile(`(?i)\s*\(official\s+visualizer\)`),
	regexp.MustCompile(`(?i)\s*\(lyrics?\)`),
	regexp.MustCompile(`(?i)\s*\(visual(?:izer)?\)`),
	regexp.MustCompile(`(?i)\s*\(audio\)`),
	regexp.MustCompile(`(?i)\s*\(hd\)`),
	regexp.MustCompile(`(?i)\s*\(hq\)`),
	regexp.MustCompile(`(?i)\s*\(4k\)`),
	regexp.MustCompile(`(?i)\s*\(explicit\)`),
	regexp.MustCompile(`(?i)\s*\(clean\)`),

	// Bracketed suffixes
	regexp.MustCompile(`(?i)\s*\[official\s+(music\s+)?video\]`),
	regexp.MustCompile(`(?i)\s*\[official\s+audio\]`),
	regexp.MustCompile(`(?i)\s*\[official\s+lyric\s+video\]`),
	regexp.MustCompile(`(?i)\s*\[official\s+visualizer\]`),
	regexp.MustCompile(`(?i)\s*\[lyrics?\]`),
	regexp.MustCompile(`(?i)\s*\[visual(?:izer)?\]`),
	regexp.MustCompile(`(?i)\s*\[audio\]`),
	regexp.MustCompile(`(?i)\s*\[hd\]`),
	regexp.MustCompile(`(?i)\s*\[hq\]`),
	regexp.MustCompile(`(?i)\s*\[4k\]`),
	regexp.MustCompile(`(?i)\s*\[explicit\]`),
	regexp.MustCompile(`(?i)\s*\[clean\]`),
}

// Patterns to extract featuring artists from the title
var featuringPattern = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring)\s+([^\)\]]+)[\)\]]`)

// Pattern to detect "VEVO" channel suffix in artist name
var vevoPattern = regexp.MustCompile(`(?i)vevo$`)

// Pattern for "Artist - Title" format (common in YouTube titles)
var artistTitleSeparator = regexp.MustCompile(`^(.+?)\s*[-–—]\s*(.+)$`)

// NormalizeQuery cleans a video-style title and uploader name into a
// catalog search query.
func NormalizeQuery(title, artist string) Query {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)

	// Clean VEVO suffix from artist
	artist = vevoPattern.ReplaceAllString(artist, "")
	artist = strings.TrimSpace(artist)

	// If we have no title but have artist, nothing useful to search
	if title == "" {
		return Query{Title: title, Artist: artist}
	}

	// Remove YouTube-specific suffixes from title
	for _, p := range titleCleanupPatterns {
		title = p.ReplaceAllString(title, "")
	}

	// Extract featuring artists (keep them stripped from title for cleaner search)
	title = featuringPattern.ReplaceAllString(title, "")

	// If artist is empty, try to split "Artist - Title" from the title string
	if artist == "" {
		if m := artistTitleSeparator.FindStringSubmatch(title); m != nil {
			artist = strings.TrimSpace(m[1])
			title = strings.TrimSpace(m[2])
		}
	}

	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)

	return Query{
		Title:  title,
		Artist: artist,
	}
}

// Normalize returns the canonical form of rec ready for embedding: trimmed
// NFC strings, reconciled artist and album artist, a four digit Year taken
// from ReleaseDate, and no fields that do not belong in a tag. Applying it
// twice gives the same result as applying it once.
func Normalize(rec Record) Record {
	out := rec

	for _, f := range []*string{
		&out.Title, &out.Artist, &out.Album, &out.AlbumArtist, &out.ReleaseDate,
		&out.Genre, &out.Composer, &out.Publisher, &out.ISRC, &out.Comment,
		&out.Copyright, &out.Encoder, &out.SourceURL, &out.RecordingID,
		&out.ReleaseID, &out.CoverURL,
	} {
		*f = cleanText(*f)
	}
	out.Lyrics = strings.TrimSpace(norm.NFC.String(out.Lyrics))
	out.ISRC = strings.ToUpper(strings.ReplaceAll(out.ISRC, "-", ""))

	if out.AlbumArtist == "" && out.Artist != "" {
		out.AlbumArtist = out.Artist
	}
	if out.Artist == "" && out.AlbumArtist != "" {
		out.Artist = out.AlbumArtist
	}

	for _, n := range []*int{&out.TrackNumber, &out.DiscNumber, &out.Duration, &out.BPM} {
		if *n < 0 {
			*n = 0
		}
	}

	if y := YearFrom(out.ReleaseDate); y > 0 {
		out.Year = y
	} else if out.Year < 1000 || out.Year > 9999 {
		out.Year = 0
	}

	if len(out.Cover) > 0 {
		out.CoverURL = ""
		out.Cover = append([]byte(nil), out.Cover...)
	}
	out.Description = ""

	if len(rec.Extra) > 0 {
		// Keys that fold to the same name keep the first non-empty value in
		// sorted key order.
		keys := make([]string, 0, len(rec.Extra))
		for k := range rec.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out.Extra = make(map[string]string, len(keys))
		for _, raw := range keys {
			k := strings.ToUpper(strings.TrimSpace(raw))
			v := cleanText(rec.Extra[raw])
			if _, seen := out.Extra[k]; seen || k == "" || v == "" {
				continue
			}
			out.Extra[k] = v
		}
		if len(out.Extra) == 0 {
			out.Extra = nil
		}
	}

	return out
}

// YearFrom extracts a four digit year from the leading digits of a
// date-like string ("2001-05-01", "2001", "20010501"). It returns 0 when
// there is no such prefix.
func YearFrom(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	y, ok := coerceIntString(date[:4])
	if !ok || y < 1000 {
		return 0
	}
	return y
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
