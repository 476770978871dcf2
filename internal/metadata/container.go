package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

type container int

const (
	containerID3 container = iota + 1
	containerMP4
)

func (c container) String() string {
	switch c {
	case containerID3:
		return "ID3"
	case containerMP4:
		return "MP4"
	}
	return "unknown"
}

var containerByExt = map[string]container{
	".mp3": containerID3,
	".m4a": containerMP4,
	".m4b": containerMP4,
	".mp4": containerMP4,
}

func containerFor(path string) (container, bool) {
	c, ok := containerByExt[strings.ToLower(filepath.Ext(path))]
	return c, ok
}

// checkContainer sniffs the file and makes sure it really is the kind of
// container its extension claims. An MP3 without any tag is accepted when
// it starts with an MPEG frame sync.
func checkContainer(path string, want container) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	format, _, err := tag.Identify(f)
	switch {
	case err == nil:
	case errors.Is(err, tag.ErrNoTagsFound):
		if want == containerID3 && hasFrameSync(f) {
			return nil
		}
		return fmt.Errorf("%w: not a valid %s file", ErrMalformedContainer, want)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	var got container
	switch format {
	case tag.ID3v1, tag.ID3v2_2, tag.ID3v2_3, tag.ID3v2_4:
		got = containerID3
	case tag.MP4:
		got = containerMP4
	}
	if got != want {
		return fmt.Errorf("%w: expected %s, found %s", ErrMalformedContainer, want, format)
	}
	return nil
}

func hasFrameSync(r io.ReadSeeker) bool {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false
	}
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false
	}
	return b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
