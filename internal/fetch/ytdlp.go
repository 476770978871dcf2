package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"tunetag/internal/logger"
	"tunetag/internal/metadata"
	"tunetag/internal/report"
	"tunetag/internal/retry"
	"tunetag/internal/workpool"
)

// Item is one local audio file together with what its source said about it.
type Item struct {
	Path   string
	Hints  metadata.Hints
	Source string
}

// Options configures the yt-dlp fetcher.
type Options struct {
	OutDir         string
	AudioFormat    string
	CookiesBrowser string
	Policy         retry.Policy
}

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// YTDLP downloads audio with yt-dlp.
type YTDLP struct {
	opts   Options
	pool   *workpool.Pool
	logger *logger.Logger
	binary string
	run    runFunc
}

// NewYTDLP creates a fetcher that writes into opts.OutDir.
func NewYTDLP(opts Options, pool *workpool.Pool, log *logger.Logger) *YTDLP {
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	return &YTDLP{opts: opts, pool: pool, logger: log, binary: "yt-dlp", run: execCommand}
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// fatalMarkers are yt-dlp messages that will not change on a retry.
var fatalMarkers = []string{
	"Unsupported URL",
	"is not a valid URL",
	"Private video",
	"Video unavailable",
}

// Fetch downloads everything behind rawURL. Failed attempts are retried
// with backoff and reported as warnings; when every attempt fails the
// returned error is a *retry.TerminalError.
func (y *YTDLP) Fetch(ctx context.Context, rawURL string) ([]Item, []report.Warning, error) {
	link, err := Detect(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(y.opts.OutDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	y.logger.Debug("Fetching %s (%s %s)", link.URL, link.Platform, link.Kind)

	type batch struct {
		items   []Item
		partial error
	}
	res, warnings, err := retry.Do(ctx, y.opts.Policy, link.URL, func(ctx context.Context) (batch, error) {
		return workpool.Run(ctx, y.pool, func() (batch, error) {
			items, err := y.download(ctx, link)
			if err != nil && len(items) > 0 {
				// Some playlist entries failed; keep what arrived.
				return batch{items: items, partial: err}, nil
			}
			return batch{items: items}, err
		})
	})
	if err != nil {
		return nil, warnings, err
	}
	if res.partial != nil {
		warnings = append(warnings, report.Warnf(link.URL, "some entries failed: %v", res.partial))
	}
	items := res.items
	y.logger.Debug("Fetched %d file(s) from %s", len(items), link.URL)
	return items, warnings, nil
}

func (y *YTDLP) buildArgs(link Link) []string {
	tmpl := filepath.Join(y.opts.OutDir, "%(uploader,channel)s - %(title)s.%(ext)s")
	if link.Kind == KindPlaylist {
		tmpl = filepath.Join(y.opts.OutDir, "%(playlist_title,playlist)s", "%(playlist_index)03d - %(title)s.%(ext)s")
	}

	args := []string{
		"--print", "after_move:%()j",
		"--no-simulate",
		"--no-progress",
		"-x",
		"--audio-format", y.opts.AudioFormat,
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"--retries", "10",
		"--fragment-retries", "10",
		"-i",
		"-o", tmpl,
	}
	if link.Kind == KindTrack {
		args = append(args, "--no-playlist")
	}
	if y.opts.CookiesBrowser != "" {
		args = append(args, "--cookies-from-browser", y.opts.CookiesBrowser)
	}
	return append(args, link.URL)
}

func (y *YTDLP) download(ctx context.Context, link Link) ([]Item, error) {
	stdout, stderr, runErr := y.run(ctx, y.binary, y.buildArgs(link)...)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	items, parseErr := y.parseOutput(stdout, link)
	if runErr != nil {
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			return nil, retry.Fatal(fmt.Errorf("yt-dlp not available: %w", runErr))
		}
		err := fmt.Errorf("yt-dlp failed: %w: %s", runErr, lastLine(stderr))
		for _, marker := range fatalMarkers {
			if bytes.Contains(stderr, []byte(marker)) {
				return items, retry.Fatal(err)
			}
		}
		return items, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("yt-dlp produced no audio files")
	}
	return items, nil
}

// parseOutput reads one info JSON document per line.
func (y *YTDLP) parseOutput(stdout []byte, link Link) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info map[string]any
		if err := json.Unmarshal(line, &info); err != nil {
			y.logger.Debug("Skipping unparsable yt-dlp line: %v", err)
			continue
		}
		path := infoPath(info, y.opts.AudioFormat)
		if path == "" {
			continue
		}
		items = append(items, Item{Path: path, Hints: HintsFromInfo(info, link), Source: link.URL})
	}
	if err := scanner.Err(); err != nil {
		return items, fmt.Errorf("error reading yt-dlp output: %w", err)
	}
	return items, nil
}

// infoPath returns the final audio path from an info document.
func infoPath(info map[string]any, format string) string {
	if p, ok := info["filepath"].(string); ok && p != "" {
		return p
	}
	if reqs, ok := info["requested_downloads"].([]any); ok && len(reqs) > 0 {
		if m, ok := reqs[0].(map[string]any); ok {
			if p, ok := m["filepath"].(string); ok && p != "" {
				return p
			}
		}
	}
	if p, ok := info["_filename"].(string); ok && p != "" {
		return strings.TrimSuffix(p, filepath.Ext(p)) + "." + format
	}
	return ""
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
