// Package render drives an edit plan through the full pipeline: segment
// planning, source normalization, per-segment extraction, concatenation with
// optional overlay compositing, and output verification. Each job runs in an
// isolated temp directory that is removed when the job ends, success or not.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/render-agent/internal/engine"
	"github.com/clipforge/render-agent/internal/logging"
	"github.com/clipforge/render-agent/internal/overlay"
	"github.com/clipforge/render-agent/internal/plan"
	"github.com/clipforge/render-agent/internal/progress"
	"github.com/clipforge/render-agent/internal/source"
	"github.com/clipforge/render-agent/internal/timeline"
)

// MixedFormatWarning is attached to results whose sources mixed adaptive
// streams with flat files, forcing an extra lossy encode.
const MixedFormatWarning = "sources mixed adaptive streams with flat files; an extra re-encode was required and quality may be slightly reduced"

// Normalizer is the slice of the source package the pipeline needs.
type Normalizer interface {
	NormalizeAll(ctx context.Context, sources []plan.Source, dir string) (*source.Result, error)
	FetchOverlayImages(ctx context.Context, overlays []plan.Overlay, dir string) (map[string]string, error)
}

// Config carries the pipeline's static settings, resolved once at startup.
type Config struct {
	OutputDir string
	WorkDir   string

	MinCutDuration float64
	MinCopySegment float64

	EncodePreset string
	EncodeCRF    int
	FrameRate    int

	VerifyRetries  int
	VerifyInterval time.Duration

	SegmentTimeout time.Duration
	ConcatTimeout  time.Duration
}

// Result is what a finished job hands back to the caller.
type Result struct {
	JobID      string
	OutputPath string
	Segments   []timeline.TimeRange
	Transcoded bool
	Warning    string
}

type Pipeline struct {
	engine  engine.Engine
	sources Normalizer
	cfg     Config
	logger  *slog.Logger
}

func NewPipeline(eng engine.Engine, norm Normalizer, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{engine: eng, sources: norm, cfg: cfg, logger: logger}
}

// Render executes a job end to end. The returned error is one of the typed
// failures (*PlanningError, *source.AcquisitionError, *engine.EngineError,
// *engine.TimeoutError, *VerificationError) or a wrapped I/O error.
func (p *Pipeline) Render(ctx context.Context, job *Job) (result *Result, err error) {
	log := logging.WithJobID(p.logger, job.ID)

	defer func() {
		if err != nil {
			job.enterPhase(PhaseFailed)
			log.Error("render failed", "phase", job.Phase(), "error", err)
		}
	}()

	job.enterPhase(PhasePlanning)
	if verr := job.Plan.Validate(); verr != nil {
		return nil, &PlanningError{Reason: verr.Error()}
	}

	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "job-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn("work dir cleanup failed", "dir", logging.SanitizePath(workDir), "error", rmErr)
		}
	}()

	job.enterPhase(PhaseNormalizing)
	norm, err := p.sources.NormalizeAll(ctx, job.Plan.Sources, workDir)
	if err != nil {
		return nil, err
	}
	imagePaths, err := p.sources.FetchOverlayImages(ctx, job.Plan.Overlays, workDir)
	if err != nil {
		return nil, err
	}

	working, err := p.combineSources(ctx, norm, workDir)
	if err != nil {
		return nil, err
	}

	// A zero trim end means "to the end of the material" and has to be
	// resolved against the actual file before segments can be planned.
	trimEnd := job.Plan.TrimEnd
	probe, err := p.engine.Probe(ctx, working)
	if err != nil {
		return nil, fmt.Errorf("probe working file: %w", err)
	}
	if trimEnd <= 0 {
		trimEnd = probe.Duration
	}

	segments, err := timeline.CutsToSegments(job.Plan.TrimStart, trimEnd, job.Plan.Cuts, p.cfg.MinCutDuration)
	if err != nil {
		return nil, &PlanningError{Reason: err.Error()}
	}
	if len(segments) == 0 {
		return nil, &PlanningError{Reason: "cuts remove all content"}
	}
	job.setSegments(segments)
	log.Info("plan resolved", "segments", len(segments), "duration", timeline.TotalDuration(segments))

	segPaths, err := p.extractSegments(ctx, job, working, segments, workDir)
	if err != nil {
		return nil, err
	}

	outPath, concatReencoded, err := p.concatenate(ctx, job, segments, segPaths, imagePaths, norm, probe, workDir)
	if err != nil {
		return nil, err
	}

	job.enterPhase(PhaseVerifying)
	if err := p.verifyOutput(ctx, outPath); err != nil {
		return nil, err
	}
	job.Tracker.MarkVerified()
	job.enterPhase(PhaseDone)

	result = &Result{
		JobID:      job.ID,
		OutputPath: outPath,
		Segments:   segments,
		Transcoded: norm.Transcoded || concatReencoded,
	}
	if norm.MixedFormats {
		result.Warning = MixedFormatWarning
	}
	log.Info("render complete", "output", logging.SanitizePath(outPath), "transcoded", result.Transcoded)
	return result, nil
}

// combineSources joins multiple normalized sources into one working file.
// Uniform inputs are stream-copied; anything else gets one encode pass.
func (p *Pipeline) combineSources(ctx context.Context, norm *source.Result, workDir string) (string, error) {
	if len(norm.Paths) == 1 {
		return norm.Paths[0], nil
	}

	listPath := filepath.Join(workDir, "sources.txt")
	if err := writeConcatList(listPath, norm.Paths); err != nil {
		return "", err
	}

	combined := filepath.Join(workDir, "combined.mp4")
	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}
	if norm.Uniform {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, p.encodeArgs()...)
	}
	args = append(args, combined)

	inv := engine.Invocation{Args: args, Timeout: p.cfg.ConcatTimeout}
	if err := p.engine.Run(ctx, inv); err != nil {
		return "", fmt.Errorf("combine sources: %w", err)
	}
	return combined, nil
}

// extractSegments cuts each keep-segment out of the working file. Seeking is
// output-side (-ss after -i) so boundaries are frame-accurate even on the
// copy path.
func (p *Pipeline) extractSegments(ctx context.Context, job *Job, working string, segments []timeline.TimeRange, workDir string) ([]string, error) {
	job.enterPhase(PhaseExtracting)

	durations := make([]float64, len(segments))
	for i, seg := range segments {
		durations[i] = seg.Duration()
	}
	weights := progress.SplitWeight(progress.ExtractWeight, durations)

	paths := make([]string, len(segments))
	for i, seg := range segments {
		segPath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
		reencode := ExtractReencode(job.Plan.HasOverlays(), seg.Duration(), p.cfg.MinCopySegment)

		args := []string{
			"-i", working,
			"-ss", formatSeconds(seg.Start),
			"-t", formatSeconds(seg.Duration()),
		}
		if reencode {
			args = append(args, p.encodeArgs()...)
		} else {
			args = append(args, "-c", "copy")
		}
		args = append(args, segPath)

		job.Tracker.Begin(weights[i])
		inv := engine.Invocation{
			Args:             args,
			ExpectedDuration: seg.Duration(),
			Timeout:          p.cfg.SegmentTimeout,
			OnProgress:       job.Tracker.Update,
		}
		if err := p.engine.Run(ctx, inv); err != nil {
			return nil, fmt.Errorf("extract segment %d %s: %w", i, seg, err)
		}
		job.Tracker.Complete()
		paths[i] = segPath
	}
	return paths, nil
}

// concatenate joins the extracted segments into the final output, attaching
// the overlay graph when the plan has overlays.
func (p *Pipeline) concatenate(ctx context.Context, job *Job, segments []timeline.TimeRange, segPaths []string, imagePaths map[string]string, norm *source.Result, probe *engine.ProbeResult, workDir string) (string, bool, error) {
	job.enterPhase(PhaseConcatenating)

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", false, fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(p.cfg.OutputDir, job.ID+"."+job.Plan.OutputFormat())

	listPath := filepath.Join(workDir, "segments.txt")
	if err := writeConcatList(listPath, segPaths); err != nil {
		return "", false, err
	}

	totalDur := timeline.TotalDuration(segments)
	shortest := segments[0].Duration()
	for _, seg := range segments[1:] {
		if d := seg.Duration(); d < shortest {
			shortest = d
		}
	}
	reencode := ConcatReencode(job.Plan.HasOverlays(), len(segments), shortest, p.cfg.MinCopySegment, norm.MixedFormats)

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}

	var graph overlay.Graph
	if job.Plan.HasOverlays() {
		for _, img := range overlay.ImageOverlays(job.Plan.Overlays) {
			path, ok := imagePaths[img.ID]
			if !ok {
				return "", false, fmt.Errorf("no fetched image for overlay %q", img.ID)
			}
			args = append(args, "-loop", "1", "-t", formatSeconds(totalDur), "-i", path)
		}

		var err error
		graph, err = overlay.Compile(overlay.Spec{
			Overlays:        job.Plan.Overlays,
			ImagePaths:      imagePaths,
			ImageInputIndex: 1,
			FrameWidth:      probe.Width,
			FrameHeight:     probe.Height,
			TotalDuration:   totalDur,
		})
		if err != nil {
			return "", false, fmt.Errorf("compile overlay graph: %w", err)
		}
	}

	if !graph.Empty() {
		args = append(args, "-filter_complex", graph.Filter, "-map", graph.Output, "-map", "0:a?")
	}
	if reencode {
		args = append(args, p.encodeArgs()...)
		args = append(args, "-movflags", "+faststart")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, outPath)

	job.Tracker.Begin(progress.ConcatWeight)
	inv := engine.Invocation{
		Args:             args,
		ExpectedDuration: totalDur,
		Timeout:          p.cfg.ConcatTimeout,
		OnProgress:       job.Tracker.Update,
	}
	if err := p.engine.Run(ctx, inv); err != nil {
		return "", false, fmt.Errorf("concatenate segments: %w", err)
	}
	job.Tracker.Complete()
	return outPath, reencode, nil
}

// verifyOutput polls for a non-empty output file. Encoders occasionally exit
// zero before the file is fully flushed to disk, so existence is checked with
// bounded retries rather than once.
func (p *Pipeline) verifyOutput(ctx context.Context, path string) error {
	retries := p.cfg.VerifyRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.VerifyInterval):
			}
		}
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			return nil
		}
	}
	return &VerificationError{Path: path, Attempts: retries}
}

func (p *Pipeline) encodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", p.cfg.EncodePreset,
		"-crf", strconv.Itoa(p.cfg.EncodeCRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(p.cfg.FrameRate),
		"-c:a", "aac",
	}
}

// writeConcatList writes a concat-demuxer list file. Single quotes in paths
// are escaped the way the demuxer expects.
func writeConcatList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		escaped := strings.ReplaceAll(f, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
