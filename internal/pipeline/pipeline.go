// Package pipeline runs fetched or uploaded files through metadata
// resolution, normalisation and tag embedding.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"tunetag/internal/fetch"
	"tunetag/internal/logger"
	"tunetag/internal/metadata"
	"tunetag/internal/report"
	"tunetag/pkg/utils"
)

// Resolver builds the metadata record for one file.
type Resolver interface {
	Resolve(ctx context.Context, path string, hints metadata.Hints) (metadata.Record, []report.Warning)
}

// Embedder writes a record into a file.
type Embedder interface {
	Embed(ctx context.Context, path string, rec metadata.Record, cover []byte) error
}

// Fetcher downloads the audio behind a link.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]fetch.Item, []report.Warning, error)
}

type Hooks struct {
	OnItems    func(total int)
	OnProgress func()
	OnStage    func(stage string)
}

// Options controls where tagged files end up and how many are processed
// at once.
type Options struct {
	// LibraryDir, when set, receives every tagged file under Artist/Album.
	LibraryDir string
	Parallel   int
}

// Processor ties the stages together.
type Processor struct {
	resolver Resolver
	embedder Embedder
	fetcher  Fetcher
	opts     Options
	logger   *logger.Logger
	hooks    Hooks
}

// New creates a Processor. fetcher may be nil when only local files are
// processed.
func New(res Resolver, emb Embedder, fetcher Fetcher, opts Options, log *logger.Logger) *Processor {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Processor{
		resolver: res,
		embedder: emb,
		fetcher:  fetcher,
		opts:     opts,
		logger:   log,
	}
}

// WithHooks returns a copy of p that reports through hooks.
func (p *Processor) WithHooks(hooks Hooks) *Processor {
	cp := *p
	cp.hooks = hooks
	return &cp
}

// FetchAndProcess downloads rawURL and tags every file it produced. A
// fetch that gives up is a single failure for the link.
func (p *Processor) FetchAndProcess(ctx context.Context, rawURL string) Result {
	if p.fetcher == nil {
		return Failed(rawURL, fmt.Errorf("no fetcher configured"))
	}

	p.stage("fetching")
	p.logger.Info("=== Fetching %s ===", rawURL)
	items, warnings, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		p.logger.Error("Fetch failed: %v", err)
		return Failed(rawURL, err, warnings...)
	}
	p.logger.Info("Fetched %d file(s)", len(items))

	res := Result{Warnings: warnings}
	res.Merge(p.Process(ctx, items))
	return res
}

// Process tags items with at most Parallel files in flight. Each file goes
// through its stages strictly in order; the returned lists follow the
// order of items regardless of completion order.
func (p *Processor) Process(ctx context.Context, items []fetch.Item) Result {
	if p.hooks.OnItems != nil {
		p.hooks.OnItems(len(items))
	}
	p.stage("tagging")

	outcomes := make([]Result, len(items))
	var g errgroup.Group
	g.SetLimit(p.opts.Parallel)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = p.processOne(ctx, item)
			if p.hooks.OnProgress != nil {
				p.hooks.OnProgress()
			}
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for _, o := range outcomes {
		res.Merge(o)
	}
	p.stage("done")
	return res
}

func (p *Processor) processOne(ctx context.Context, item fetch.Item) Result {
	name := filepath.Base(item.Path)
	if err := ctx.Err(); err != nil {
		return Failed(name, err)
	}

	p.logger.Info("Tagging %s", name)
	rec, warnings := p.resolver.Resolve(ctx, item.Path, item.Hints)
	rec = metadata.Normalize(rec)

	if err := p.embedder.Embed(ctx, item.Path, rec, rec.Cover); err != nil {
		p.logger.Error("  %s: %v", name, err)
		return Failed(name, err, warnings...)
	}

	path := item.Path
	if p.opts.LibraryDir != "" {
		dst, err := p.moveToLibrary(path, rec)
		if err != nil {
			p.logger.Warn("  %s: %v", name, err)
			warnings = append(warnings, report.Warning{Item: name, Message: err.Error()})
		} else {
			path = dst
		}
	}

	p.logger.Debug("  %s -> %s", name, path)
	return Result{
		Successes: []Success{{Record: rec, Path: path}},
		Warnings:  warnings,
	}
}

// moveToLibrary moves a tagged file to LibraryDir/Artist/Album. An
// existing file at the destination is never replaced.
func (p *Processor) moveToLibrary(path string, rec metadata.Record) (string, error) {
	dst := filepath.Join(p.opts.LibraryDir, metadata.SubDir(rec), filepath.Base(path))
	if dst == path {
		return path, nil
	}
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("library already has %s, left in place", dst)
	}
	if err := utils.MoveFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (p *Processor) stage(name string) {
	if p.hooks.OnStage != nil {
		p.hooks.OnStage(name)
	}
}
