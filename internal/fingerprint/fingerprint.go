// Package fingerprint computes Chromaprint fingerprints with the fpcalc
// tool.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"tunetag/internal/workpool"
)

// ErrNotInstalled is returned when fpcalc is not on PATH.
var ErrNotInstalled = errors.New("fpcalc not found in PATH")

// Result is one fpcalc run.
type Result struct {
	Duration    int // seconds
	Fingerprint string
}

// Calculator runs fpcalc through a shared work pool.
type Calculator struct {
	binary string
	pool   *workpool.Pool
}

// New returns a Calculator using the fpcalc found on PATH.
func New(pool *workpool.Pool) *Calculator {
	return &Calculator{binary: "fpcalc", pool: pool}
}

// Available reports whether the fpcalc binary can be found.
func (c *Calculator) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Calculate fingerprints the audio file at path.
func (c *Calculator) Calculate(ctx context.Context, path string) (Result, error) {
	if !c.Available() {
		return Result{}, ErrNotInstalled
	}
	return workpool.Run(ctx, c.pool, func() (Result, error) {
		cmd := exec.CommandContext(ctx, c.binary, path) //nolint:gosec
		output, err := cmd.Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
				return Result{}, fmt.Errorf("fpcalc: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
			}
			return Result{}, fmt.Errorf("fpcalc: %w", err)
		}
		return parseOutput(string(output))
	})
}

// parseOutput reads the DURATION= and FINGERPRINT= lines fpcalc prints.
func parseOutput(output string) (Result, error) {
	var res Result
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DURATION="):
			v := strings.TrimPrefix(line, "DURATION=")
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				res.Duration = int(f)
			}
		case strings.HasPrefix(line, "FINGERPRINT="):
			res.Fingerprint = strings.TrimPrefix(line, "FINGERPRINT=")
		}
	}
	if res.Fingerprint == "" {
		return Result{}, errors.New("fpcalc: fingerprint missing")
	}
	return res, nil
}
