package fetch

import (
	"path/filepath"
	"regexp"
	"strings"

	"tunetag/internal/metadata"
)

var (
	splitRE     = regexp.MustCompile(`\s+[-–—]\s+`)
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

// SplitArtistTitle splits "Artist - Title". It reports false when text
// does not have exactly that shape.
func SplitArtistTitle(text string) (artist, title string, ok bool) {
	parts := splitRE.Split(strings.TrimSpace(text), 2)
	if len(parts) != 2 {
		return "", "", false
	}
	artist, title = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if artist == "" || title == "" {
		return "", "", false
	}
	return artist, title, true
}

// HintsFromFilename derives hints from a file name like
// "Artist - Title.mp3".
func HintsFromFilename(path string) metadata.Hints {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if artist, title, ok := SplitArtistTitle(base); ok {
		return metadata.Hints{"artist": artist, "title": title}
	}
	return metadata.Hints{"title": base}
}

// HintsFromInfo picks the music related fields out of a yt-dlp info
// document. yt-dlp's own names are mapped explicitly because some of them
// ("track") mean something else in hint vocabulary.
func HintsFromInfo(info map[string]any, link Link) metadata.Hints {
	h := metadata.Hints{}
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := info[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	title := str("track", "title")
	artist := str("artist", "creator")
	if artist == "" {
		if a, t, ok := SplitArtistTitle(title); ok {
			artist, title = a, t
		} else {
			artist = str("uploader", "channel")
		}
	}
	artist = strings.TrimSuffix(artist, " - Topic")

	setIf := func(key, v string) {
		if v != "" {
			h[key] = v
		}
	}
	setIf("title", title)
	setIf("artist", artist)
	setIf("album_artist", str("album_artist"))
	setIf("genre", str("genre"))
	setIf("composer", str("composer"))
	setIf("webpage_url", str("webpage_url", "original_url"))
	setIf("thumbnail", str("thumbnail"))
	setIf("description", str("description"))

	album := str("album")
	if album == "" && link.Kind == KindPlaylist {
		album = str("playlist_title", "playlist")
	}
	setIf("album", album)

	if v, ok := info["track_number"]; ok && v != nil {
		h["track_number"] = v
	} else if v, ok := info["playlist_index"]; ok && v != nil && link.Kind == KindPlaylist {
		h["track_number"] = v
	}
	if v, ok := info["disc_number"]; ok && v != nil {
		h["disc_number"] = v
	}
	if v, ok := info["duration"]; ok && v != nil {
		h["duration"] = v
	}
	if v, ok := info["release_year"]; ok && v != nil {
		h["year"] = v
	}
	if d := str("release_date", "upload_date"); d != "" {
		h["release_date"] = compactDate.ReplaceAllString(d, "$1-$2-$3")
	}
	return h
}
