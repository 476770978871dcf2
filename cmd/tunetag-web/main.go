package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"tunetag/internal/config"
	"tunetag/internal/fetch"
	"tunetag/internal/logger"
	"tunetag/internal/pipeline"
	"tunetag/internal/shutdown"
	"tunetag/internal/web"
)

func main() {
	var (
		addr       string
		configPath string
		verbose    bool
	)

	flag.StringVar(&addr, "addr", "", "HTTP listen address (default from config, :8080)")
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.BoolVar(&verbose, "verbose", false, "Log debug output to stdout")
	flag.Parse()

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Verbose = true
	}
	if addr != "" {
		cfg.Web.ListenAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger with file logging
	l := logger.New(cfg.Verbose)
	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err == nil {
		logPath := filepath.Join(logDir, fmt.Sprintf("tunetag-web-%d.log", time.Now().Unix()))
		if err := l.SetFileLog(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup file logging: %v\n", err)
		}
	}
	defer l.Close()

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	sh := shutdown.New(context.Background(), l)
	stop := sh.Listen()
	defer stop()

	processor := pipeline.Build(cfg, l)
	uploads := fetch.NewUploads(cfg.UploadDir(), cfg.Upload.AllowedExts)

	jobMgr := web.NewJobManager()
	jobMgr.StartCleanup(sh.Context())
	server := web.NewServer(sh.Context(), jobMgr, func(h pipeline.Hooks) web.Runner {
		return processor.WithHooks(h)
	}, uploads, l.Named("web"))

	// No write timeout: the websocket feed stays open for the whole job.
	httpServer := &http.Server{
		Addr:              cfg.Web.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sh.AddCleanup(func() {
		l.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			l.Error("Server shutdown error: %v", err)
		}
	})

	l.Info("Starting web server on %s", cfg.Web.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("Server error: %v", err)
		os.Exit(1)
	}

	sh.Shutdown()
	server.Wait()
	l.Info("Server stopped")
}
