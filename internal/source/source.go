// Package source resolves every edit-plan source to a local, codec-uniform
// video file: remote assets are downloaded, still images become fixed-length
// clips, and adaptive-stream manifests are transcoded to flat files with a
// context-dependent quality profile.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/render-agent/internal/engine"
	"github.com/clipforge/render-agent/internal/plan"
)

var (
	ErrDurationExceeded   = errors.New("source duration exceeds the configured maximum")
	ErrResolutionExceeded = errors.New("source resolution exceeds the configured maximum")
)

// Config holds the normalizer's settings; all values come from static
// runtime configuration and are fixed for the lifetime of a job.
type Config struct {
	FrameRate    int
	EncodePreset string

	// ImageDuration overrides the default clip length for image sources
	// that carry no explicit duration. Zero keeps the plan default.
	ImageDuration float64

	// EncodeCRF is the ordinary quality used when the transcoded file is
	// the final lossy pass. NearLosslessCRF is used instead when the result
	// will be re-encoded again during concatenation, so total quality loss
	// stays bounded to one lossy step.
	EncodeCRF       int
	NearLosslessCRF int

	RestrictionsEnabled bool
	MaxDuration         float64 // seconds
	MaxWidth            int
	MaxHeight           int

	DownloadTimeout  time.Duration
	TranscodeTimeout time.Duration
}

// Result is the outcome of normalizing all sources of one plan.
type Result struct {
	// Paths are the local files, in concatenation order.
	Paths []string

	// MixedFormats is set when a manifest-based source was combined with a
	// flat-file source, which forces an extra re-encode pass during
	// concatenation and must surface as a quality warning.
	MixedFormats bool

	// Transcoded is set when any source went through a lossy transcode.
	Transcoded bool

	// Uniform reports whether the files can be concatenated by stream-copy:
	// either all plain downloads sharing container and probed dimensions,
	// or all produced by the normalizer's own fixed encode settings.
	Uniform bool
}

// Normalizer materialises plan sources into a job's working directory.
type Normalizer struct {
	engine engine.Engine
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

func NewNormalizer(eng engine.Engine, cfg Config, logger *slog.Logger) *Normalizer {
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Normalizer{
		engine: eng,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// NormalizeAll processes the sources in array order; order defines
// concatenation order and must be preserved. The first failure aborts with
// an AcquisitionError naming the failing source.
func (n *Normalizer) NormalizeAll(ctx context.Context, sources []plan.Source, dir string) (*Result, error) {
	multi := len(sources) > 1
	result := &Result{Paths: make([]string, 0, len(sources))}

	hasManifest := false
	hasFlatVideo := false
	kinds := map[string]bool{}

	for i, src := range sources {
		var path string
		var err error

		switch s := src.(type) {
		case plan.ImageSource:
			path, err = n.synthesizeClip(ctx, s, dir, i)
			result.Transcoded = true
			kinds["normalized"] = true

		case plan.VideoSource:
			if s.IsManifest() {
				path, err = n.transcodeManifest(ctx, s, dir, i, multi)
				hasManifest = true
				result.Transcoded = true
				kinds["normalized"] = true
			} else {
				path, err = n.fetchVideo(ctx, s, dir, i)
				hasFlatVideo = true
				if err == nil {
					kinds[n.flatKind(ctx, path, i)] = true
				}
			}

		default:
			err = fmt.Errorf("unknown source kind %T", src)
		}

		if err != nil {
			return nil, &AcquisitionError{SourceIndex: i, URL: src.SourceURL(), Err: err}
		}
		result.Paths = append(result.Paths, path)
	}

	result.MixedFormats = hasManifest && hasFlatVideo
	result.Uniform = len(kinds) == 1

	if n.logger != nil {
		n.logger.Info("sources normalized",
			"count", len(result.Paths),
			"mixed_formats", result.MixedFormats,
			"uniform", result.Uniform,
		)
	}
	return result, nil
}

// synthesizeClip turns a still image into a video clip: the image is looped
// for the configured duration with a silent stereo track attached, so it
// concatenates cleanly with real video sources.
func (n *Normalizer) synthesizeClip(ctx context.Context, s plan.ImageSource, dir string, index int) (string, error) {
	imgPath, err := n.fetchAsset(ctx, s.URL, filepath.Join(dir, fmt.Sprintf("source_%d_still%s", index, urlExt(s.URL, ".png"))))
	if err != nil {
		return "", err
	}

	duration := s.Duration
	if duration <= 0 {
		duration = n.cfg.ImageDuration
	}
	if duration <= 0 {
		duration = s.ClipDuration()
	}

	outPath := filepath.Join(dir, fmt.Sprintf("source_%d.mp4", index))
	inv := engine.Invocation{
		Args:             buildImageClipArgs(imgPath, outPath, duration, n.cfg),
		ExpectedDuration: duration,
		Timeout:          n.cfg.TranscodeTimeout,
	}
	if err := n.engine.Run(ctx, inv); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("image clip synthesis failed: %w", err)
	}
	return outPath, nil
}

// transcodeManifest flattens an adaptive stream to a local file. With
// restrictions enabled the stream is probed first and rejected when it
// exceeds the configured limits.
func (n *Normalizer) transcodeManifest(ctx context.Context, s plan.VideoSource, dir string, index int, multi bool) (string, error) {
	var expected float64
	if n.cfg.RestrictionsEnabled {
		probe, err := n.engine.Probe(ctx, s.URL)
		if err != nil {
			return "", fmt.Errorf("stream probe failed: %w", err)
		}
		if n.cfg.MaxDuration > 0 && probe.Duration > n.cfg.MaxDuration {
			return "", fmt.Errorf("%w: %.1fs > %.1fs", ErrDurationExceeded, probe.Duration, n.cfg.MaxDuration)
		}
		if (n.cfg.MaxWidth > 0 && probe.Width > n.cfg.MaxWidth) ||
			(n.cfg.MaxHeight > 0 && probe.Height > n.cfg.MaxHeight) {
			return "", fmt.Errorf("%w: %dx%d > %dx%d", ErrResolutionExceeded,
				probe.Width, probe.Height, n.cfg.MaxWidth, n.cfg.MaxHeight)
		}
		expected = probe.Duration
	}

	crf := n.cfg.EncodeCRF
	if multi {
		// The concat pass will re-encode; keep this pass near-lossless.
		crf = n.cfg.NearLosslessCRF
	}

	outPath := filepath.Join(dir, fmt.Sprintf("source_%d.mp4", index))
	inv := engine.Invocation{
		Args:             buildManifestTranscodeArgs(s.URL, outPath, crf, n.cfg),
		ExpectedDuration: expected,
		Timeout:          n.cfg.TranscodeTimeout,
	}
	if err := n.engine.Run(ctx, inv); err != nil {
		// A partial transcode must not be mistaken for valid input.
		os.Remove(outPath)
		return "", fmt.Errorf("stream transcode failed: %w", err)
	}
	return outPath, nil
}

// fetchVideo downloads a plain video byte-for-byte; no transcode.
func (n *Normalizer) fetchVideo(ctx context.Context, s plan.VideoSource, dir string, index int) (string, error) {
	return n.fetchAsset(ctx, s.URL, filepath.Join(dir, fmt.Sprintf("source_%d%s", index, urlExt(s.URL, ".mp4"))))
}

// flatKind derives the concat-compatibility key of a plain download. The
// container extension alone is not enough: two mp4 files can carry different
// resolutions, so the file is probed and its dimensions folded in. A file
// that cannot be probed is never uniform with anything.
func (n *Normalizer) flatKind(ctx context.Context, path string, index int) string {
	probe, err := n.engine.Probe(ctx, path)
	if err != nil || probe == nil {
		if n.logger != nil {
			n.logger.Warn("downloaded source not probeable, forcing re-encode on concat", "path", path, "error", err)
		}
		return fmt.Sprintf("opaque:%d", index)
	}
	return fmt.Sprintf("flat:%s:%dx%d", strings.ToLower(filepath.Ext(path)), probe.Width, probe.Height)
}

// FetchOverlayImages downloads the stills referenced by image overlays,
// keyed by overlay ID.
func (n *Normalizer) FetchOverlayImages(ctx context.Context, overlays []plan.Overlay, dir string) (map[string]string, error) {
	paths := make(map[string]string)
	for _, o := range overlays {
		img, ok := o.(plan.ImageOverlay)
		if !ok {
			continue
		}
		dest := filepath.Join(dir, fmt.Sprintf("overlay_%s%s", img.ID, urlExt(img.URL, ".png")))
		path, err := n.fetchAsset(ctx, img.URL, dest)
		if err != nil {
			return nil, fmt.Errorf("overlay image %q: %w", img.ID, err)
		}
		paths[img.ID] = path
	}
	return paths, nil
}

// fetchAsset resolves a URL to a local file. Non-HTTP references are treated
// as local paths and used in place. A failed download never leaves a partial
// file behind.
func (n *Normalizer) fetchAsset(ctx context.Context, rawURL, dest string) (string, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		if _, err := os.Stat(rawURL); err != nil {
			return "", fmt.Errorf("local source not found: %w", err)
		}
		return rawURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("download interrupted: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("flush download: %w", err)
	}

	return dest, nil
}

func buildImageClipArgs(imagePath, outPath string, duration float64, cfg Config) []string {
	fps := strconv.Itoa(cfg.FrameRate)
	return []string{
		"-loop", "1",
		"-framerate", fps,
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", imagePath,
		"-f", "lavfi",
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-c:v", "libx264",
		"-preset", cfg.EncodePreset,
		"-crf", strconv.Itoa(cfg.EncodeCRF),
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-c:a", "aac",
		"-shortest",
		outPath,
	}
}

func buildManifestTranscodeArgs(url, outPath string, crf int, cfg Config) []string {
	return []string{
		"-i", url,
		"-c:v", "libx264",
		"-preset", cfg.EncodePreset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(cfg.FrameRate),
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	}
}

// urlExt returns the lower-cased extension of a URL path, ignoring query
// strings, or the fallback when none is present.
func urlExt(rawURL, fallback string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i != -1 {
		u = u[:i]
	}
	if ext := strings.ToLower(filepath.Ext(u)); ext != "" {
		return ext
	}
	return fallback
}
