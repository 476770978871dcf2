package fetch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tunetag/internal/metadata"
	"tunetag/pkg/utils"
)

// ErrExtensionNotAllowed is returned for uploads outside the whitelist.
var ErrExtensionNotAllowed = errors.New("file extension not allowed")

// Uploads stores files users hand over directly.
type Uploads struct {
	dir     string
	allowed map[string]bool
}

// NewUploads stores files in dir. An empty allowed list accepts any
// extension.
func NewUploads(dir string, allowed []string) *Uploads {
	u := &Uploads{dir: dir, allowed: make(map[string]bool, len(allowed))}
	for _, ext := range allowed {
		u.allowed[strings.ToLower(ext)] = true
	}
	return u
}

// Dir is where uploads are written.
func (u *Uploads) Dir() string { return u.dir }

// Save copies r into the upload directory under a sanitised version of
// name. Existing files are never overwritten.
func (u *Uploads) Save(name string, r io.Reader, hints metadata.Hints) (Item, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	if len(u.allowed) > 0 && !u.allowed[ext] {
		return Item{}, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}

	stem := utils.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	if err := os.MkdirAll(u.dir, 0755); err != nil {
		return Item{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(u.dir, ".upload-*"+ext)
	if err != nil {
		return Item{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Item{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Item{}, fmt.Errorf("failed to store upload: %w", err)
	}

	dest, err := reserveName(u.dir, stem, ext)
	if err != nil {
		os.Remove(tmpName)
		return Item{}, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		os.Remove(dest)
		return Item{}, fmt.Errorf("failed to store upload: %w", err)
	}

	h := HintsFromFilename(dest)
	for k, v := range hints {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		h[k] = v
	}
	return Item{Path: dest, Hints: h, Source: base}, nil
}

// reserveName creates an empty placeholder for the first free
// "stem.ext", "stem (1).ext", ... so concurrent uploads never collide.
func reserveName(dir, stem, ext string) (string, error) {
	for i := 0; i < 1000; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to reserve upload name: %w", err)
		}
	}
	return "", fmt.Errorf("no free file name for %s%s", stem, ext)
}
