// Package fetch turns links and uploads into local audio files with
// metadata hints.
package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnsupportedLink is returned for input that is not an http(s) URL.
var ErrUnsupportedLink = errors.New("unsupported link")

type Platform string

const (
	PlatformYouTube      Platform = "youtube"
	PlatformYouTubeMusic Platform = "youtube_music"
	PlatformSoundCloud   Platform = "soundcloud"
	PlatformBandcamp     Platform = "bandcamp"
	PlatformGeneric      Platform = "generic"
)

type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
)

// Link is a classified download URL.
type Link struct {
	URL      string
	Platform Platform
	Kind     Kind
}

var (
	ytPlaylist = regexp.MustCompile(`(?:youtube\.com/(?:playlist\?|watch\?.*&)list=|youtube\.com/(?:@[\w.-]+|channel/[\w-]+|c/[\w-]+)(?:/|$))`)
	scSet      = regexp.MustCompile(`soundcloud\.com/[^/]+/sets/`)
	bcAlbum    = regexp.MustCompile(`\.bandcamp\.com/album/`)
)

// Detect classifies raw by platform and link kind.
func Detect(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Link{}, fmt.Errorf("%w: %q", ErrUnsupportedLink, raw)
	}

	link := Link{URL: raw, Platform: PlatformGeneric, Kind: KindTrack}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "music.youtube.com":
		link.Platform = PlatformYouTubeMusic
		if ytPlaylist.MatchString("youtube.com"+u.RequestURI()) || u.Path == "/playlist" || strings.HasPrefix(u.Path, "/browse/") {
			link.Kind = KindPlaylist
		}
	case host == "youtube.com" || host == "youtu.be":
		link.Platform = PlatformYouTube
		if host == "youtube.com" && ytPlaylist.MatchString(host+u.RequestURI()) {
			link.Kind = KindPlaylist
		}
	case host == "soundcloud.com":
		link.Platform = PlatformSoundCloud
		if scSet.MatchString(host + u.Path) {
			link.Kind = KindPlaylist
		}
	case strings.HasSuffix(host, ".bandcamp.com"):
		link.Platform = PlatformBandcamp
		if bcAlbum.MatchString(host + u.Path) {
			link.Kind = KindPlaylist
		}
	}
	return link, nil
}
