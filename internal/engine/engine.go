// Package engine drives the external media-transcoding binaries (ffmpeg and
// ffprobe) as subprocesses: it builds no policy of its own, only correct
// invocations, timeout enforcement, diagnostic capture and progress parsing.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Engine is the execution contract the pipeline depends on. The production
// implementation spawns ffmpeg/ffprobe; tests substitute fakes.
type Engine interface {
	// Run executes one ffmpeg invocation to completion, reporting fractional
	// progress parsed from the diagnostic stream when an expected duration
	// is known.
	Run(ctx context.Context, inv Invocation) error

	// Probe reports container duration and stream dimensions for a local
	// file or URL.
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// Invocation describes a single ffmpeg run.
type Invocation struct {
	// Args are the ffmpeg arguments, excluding the binary name. The runner
	// prepends -hide_banner/-nostdin/-y.
	Args []string

	// ExpectedDuration is the seconds of media this invocation processes.
	// Zero disables progress reporting for the run.
	ExpectedDuration float64

	// Timeout forcibly terminates a hung invocation. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration

	// OnProgress receives stage-local progress in [0,1]. May be nil.
	OnProgress func(frac float64)
}

// FFmpeg is the production Engine backed by the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// New creates an FFmpeg engine, resolving both binaries. Empty paths
// auto-detect from PATH.
func New(ffmpegPath, ffprobePath string, logger *slog.Logger) (*FFmpeg, error) {
	ffmpeg, err := resolveBinary(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	ffprobe, err := resolveBinary(ffprobePath, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffprobe: %w", err)
	}

	if logger != nil {
		logger.Info("media engine initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	}

	return &FFmpeg{ffmpegPath: ffmpeg, ffprobePath: ffprobe, logger: logger}, nil
}

// Run spawns ffmpeg and blocks until it exits, fails or times out. Progress
// markers on stderr are parsed as they arrive; the last 8 KB of stderr is
// kept and attached to failures with the repeating progress lines removed.
func (f *FFmpeg) Run(ctx context.Context, inv Invocation) error {
	start := time.Now()

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	args := append([]string{"-hide_banner", "-nostdin", "-y"}, inv.Args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &EngineError{ExitCode: -1, Stderr: err.Error()}
	}

	if f.logger != nil {
		f.logger.Debug("executing ffmpeg", "args", args, "expected_duration", inv.ExpectedDuration)
	}

	if err := cmd.Start(); err != nil {
		return &EngineError{ExitCode: -1, Stderr: err.Error()}
	}

	var tailBuf bytes.Buffer
	tail := &limitedWriter{w: &tailBuf, limit: maxStderrBytes}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		tail.Write([]byte(line + "\n"))

		if inv.OnProgress != nil && inv.ExpectedDuration > 0 {
			if elapsed, ok := parseTimeMarker(line); ok {
				frac := elapsed / inv.ExpectedDuration
				if frac > 1 {
					frac = 1
				}
				inv.OnProgress(frac)
			}
		}
	}

	err = cmd.Wait()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			if f.logger != nil {
				f.logger.Warn("ffmpeg invocation timed out", "elapsed_ms", elapsed.Milliseconds())
			}
			return &TimeoutError{Elapsed: elapsed, Limit: inv.Timeout}
		}
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		diag := trimProgressLines(tailBuf.String())
		if f.logger != nil {
			f.logger.Warn("ffmpeg invocation failed",
				"exit_code", exitCode,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
		return &EngineError{ExitCode: exitCode, Stderr: diag}
	}

	if f.logger != nil {
		f.logger.Debug("ffmpeg invocation succeeded", "duration_ms", elapsed.Milliseconds())
	}
	return nil
}

// resolveBinary finds a usable binary, preferring the configured path.
func resolveBinary(preferred, fallback string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	if p, err := exec.LookPath(fallback); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", fallback)
}

// scanProgressLines splits on \n and \r; ffmpeg rewrites its progress line
// in place using carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
