package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tunetag/internal/fetch"
	"tunetag/internal/metadata"
	"tunetag/internal/pipeline"
	"tunetag/internal/watch"
	"tunetag/pkg/utils"
)

func newFetchCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>...",
		Short: "Download audio from links and tag it",
		Example: `  tunetag fetch https://www.youtube.com/watch?v=...
  tunetag fetch -p 8 -f m4a https://soundcloud.com/artist/sets/album`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if _, err := fetch.Detect(arg); err != nil {
					return err
				}
			}
			if err := utils.CheckDependencies("yt-dlp", "ffmpeg"); err != nil {
				return fmt.Errorf("dependency check failed: %w", err)
			}

			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			proc, done := s.withProgress("Tagging")
			var res pipeline.Result
			for _, url := range args {
				res.Merge(proc.FetchAndProcess(s.sh.Context(), url))
			}
			done()

			return s.report(cmd, res, f.markdown)
		},
	}
}

func newTagCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <file-or-dir>...",
		Short: "Resolve metadata for local files and embed it",
		Example: `  tunetag tag "Artist - Title.mp3"
  tunetag tag --library ~/Music ~/Downloads/album`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, skipped, err := collectItems(args)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no taggable audio files found")
			}

			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			for _, path := range skipped {
				s.log.Warn("Skipping %s: unsupported format", path)
			}

			proc, done := s.withProgress("Tagging")
			res := proc.Process(s.sh.Context(), items)
			done()

			return s.report(cmd, res, f.markdown)
		},
	}
}

// collectItems expands directories and returns the files the tagger can
// write, plus the audio files it cannot. Hints come from the file names.
func collectItems(args []string) ([]fetch.Item, []string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := utils.FindAudioFiles(arg)
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, found...)
	}

	var items []fetch.Item
	var skipped []string
	for _, path := range paths {
		if !metadata.Supported(path) {
			skipped = append(skipped, path)
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, fetch.Item{
			Path:   abs,
			Hints:  fetch.HintsFromFilename(abs),
			Source: filepath.Base(abs),
		})
	}
	return items, skipped, nil
}

func newWatchCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [inbox]",
		Short: "Tag audio files as they appear in an inbox directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			inbox := s.cfg.Watch.Inbox
			if len(args) == 1 {
				inbox = args[0]
			}
			if inbox == "" {
				inbox = filepath.Join(s.cfg.DownloadDir, "inbox")
			}

			w := watch.New(inbox, s.cfg.Watch.Settle, func(ctx context.Context, items []fetch.Item) {
				res := s.processor.Process(ctx, items)
				fmt.Fprint(cmd.OutOrStdout(), pipeline.Summary(res, pipeline.FormatText))
			}, s.log.Named("watch"))

			if err := w.Run(s.sh.Context()); err != nil {
				return err
			}
			s.log.Info("Watcher stopped")
			return nil
		},
	}
}
