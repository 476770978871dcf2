package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Logger is a printf-style front for an hclog intercept logger. Console
// output honours the verbose flag and is muted while a progress bar is
// drawn; the optional file sink always records debug output.
type Logger struct {
	Verbose bool
	hc      hclog.InterceptLogger
	out     *gatedWriter
	state   *fileState
}

type fileState struct {
	mu   sync.Mutex
	file *os.File
	sink hclog.SinkAdapter
}

// gatedWriter drops console output while a progress bar owns the terminal.
type gatedWriter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	hasBar  bool
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasBar && !g.verbose {
		return len(p), nil
	}
	return g.w.Write(p)
}

// New creates a new Logger writing to stdout.
func New(verbose bool) *Logger {
	return NewWithWriter(verbose, os.Stdout)
}

// NewWithWriter creates a Logger writing console output to w.
func NewWithWriter(verbose bool, w io.Writer) *Logger {
	level := hclog.Info
	if verbose {
		level = hclog.Debug
	}
	out := &gatedWriter{w: w, verbose: verbose}
	hc := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:   "tunetag",
		Level:  level,
		Output: out,
	})
	return &Logger{Verbose: verbose, hc: hc, out: out, state: &fileState{}}
}

// Named returns a child logger for one component. It shares the console
// writer and file sink with its parent.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Verbose: l.Verbose, hc: l.hc.NamedIntercept(name), out: l.out, state: l.state}
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if l.state.sink != nil {
		l.hc.DeregisterSink(l.state.sink)
		l.state.file.Close()
	}
	l.state.file = f
	l.state.sink = hclog.NewSinkAdapter(&hclog.LoggerOptions{
		Level:  hclog.Debug,
		Output: f,
	})
	l.hc.RegisterSink(l.state.sink)
	return nil
}

// SetProgressBar indicates that a progress bar is active
func (l *Logger) SetProgressBar(active bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.hasBar = active
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if l.state.file == nil {
		return nil
	}
	l.hc.DeregisterSink(l.state.sink)
	err := l.state.file.Close()
	l.state.file, l.state.sink = nil, nil
	return err
}

// Hclog exposes the underlying logger for libraries that take an
// hclog.Logger.
func (l *Logger) Hclog() hclog.Logger { return l.hc }

func (l *Logger) Info(format string, args ...interface{}) {
	l.hc.Info(fmt.Sprintf(format, args...))
}

// Debug logs detailed messages; they reach the console only in verbose mode.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.hc.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.hc.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.hc.Error(fmt.Sprintf(format, args...))
}
