package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tunetag/internal/config"
	"tunetag/internal/logger"
	"tunetag/internal/pipeline"
	"tunetag/internal/progress"
	"tunetag/internal/shutdown"
)

// flags are the command-line overrides. Priority: CLI flags > config file
// > defaults.
type flags struct {
	configPath string
	verbose    bool
	parallel   int
	browser    string
	format     string
	library    string
	markdown   bool
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "tunetag",
		Short:         "Fetch audio and give it complete, consistent tags",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to config file")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Show detailed output")
	pf.IntVarP(&f.parallel, "parallel", "p", 0, "Number of files processed at once (1-10)")
	pf.StringVarP(&f.browser, "browser", "b", "", "Browser to extract cookies from")
	pf.StringVarP(&f.format, "format", "f", "", "Audio format: mp3 or m4a")
	pf.StringVarP(&f.library, "library", "l", "", "Move tagged files into this directory as Artist/Album")
	pf.BoolVar(&f.markdown, "markdown", false, "Print the summary as markdown tables")

	rootCmd.AddCommand(newFetchCommand(f))
	rootCmd.AddCommand(newTagCommand(f))
	rootCmd.AddCommand(newWatchCommand(f))
	rootCmd.AddCommand(newInitConfigCommand())

	return rootCmd
}

// load reads the config file and applies the flags that were set.
func (f *flags) load(cmd *cobra.Command) (config.Config, string, error) {
	cfg, err := config.LoadConfigFile(f.configPath)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("failed to load config: %w", err)
	}
	path := f.configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	changed := cmd.Flags().Changed
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("parallel") {
		cfg.ParallelJobs = f.parallel
	}
	if changed("browser") {
		cfg.CookiesBrowser = f.browser
	}
	if changed("format") {
		cfg.AudioFormat = f.format
	}
	if changed("library") {
		cfg.LibraryDir = config.ExpandHome(f.library)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", fmt.Errorf("configuration error: %w", err)
	}
	return cfg, path, nil
}

// session is what every processing command needs: config, logger, a
// context cancelled on SIGINT/SIGTERM, and the wired pipeline.
type session struct {
	cfg       config.Config
	log       *logger.Logger
	sh        *shutdown.Handler
	stop      func()
	processor *pipeline.Processor
}

func (f *flags) open(cmd *cobra.Command) (*session, error) {
	cfg, configPath, err := f.load(cmd)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Verbose)
	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("tunetag_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}
	if configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sh := shutdown.New(ctx, log)
	return &session{
		cfg:       cfg,
		log:       log,
		sh:        sh,
		stop:      sh.Listen(),
		processor: pipeline.Build(cfg, log),
	}, nil
}

func (s *session) close() {
	s.stop()
	s.sh.Shutdown()
	s.log.Close()
}

// withProgress returns the pipeline with a progress bar attached when stdout
// is a terminal and verbose output is off. The returned func removes the
// bar.
func (s *session) withProgress(label string) (*pipeline.Processor, func()) {
	if s.cfg.Verbose || !progress.IsTerminal(os.Stdout) {
		return s.processor, func() {}
	}

	bar := progress.New(os.Stdout, label, 0)
	seen := 0
	p := s.processor.WithHooks(pipeline.Hooks{
		OnItems: func(total int) {
			seen += total
			bar.SetTotal(seen)
			s.log.SetProgressBar(true)
		},
		OnProgress: bar.Increment,
	})
	return p, func() {
		bar.Finish()
		s.log.SetProgressBar(false)
	}
}

// report prints the summary and turns failures into a non-zero exit.
func (s *session) report(cmd *cobra.Command, res pipeline.Result, markdown bool) error {
	format := pipeline.FormatText
	if markdown {
		format = pipeline.FormatMarkdown
	}
	fmt.Fprint(cmd.OutOrStdout(), pipeline.Summary(res, format))

	if err := s.sh.Context().Err(); err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d item(s) failed", len(res.Failures))
	}
	return nil
}
