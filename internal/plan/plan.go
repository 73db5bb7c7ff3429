// Package plan defines the edit plan accepted by the rendering pipeline:
// the ordered sources to concatenate, the trim window and removal cuts, and
// the timed overlays composited onto the output. Sources and overlays are
// closed variant sets dispatched with exhaustive type switches.
package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clipforge/render-agent/internal/timeline"
)

var (
	ErrNoSources     = errors.New("edit plan has no sources")
	ErrInvalidTrim   = errors.New("trim start must be before trim end")
	ErrInvalidWindow = errors.New("overlay start must be before overlay end")
)

// DefaultImageDuration is how long a still image is shown when the plan does
// not specify a duration.
const DefaultImageDuration = 5.0

// Source is a sealed set: VideoSource or ImageSource. Array position defines
// concatenation order.
type Source interface {
	SourceURL() string
	isSource()
}

// VideoSource references a flat video file or an adaptive-stream manifest.
type VideoSource struct {
	URL string
}

func (s VideoSource) SourceURL() string { return s.URL }
func (VideoSource) isSource()           {}

// IsManifest reports whether the source is an adaptive-stream manifest that
// must be transcoded to a flat file before offline processing.
func (s VideoSource) IsManifest() bool {
	u := s.URL
	if i := strings.IndexAny(u, "?#"); i != -1 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ".m3u8")
}

// ImageSource references a still image shown for a fixed duration.
type ImageSource struct {
	URL      string
	Duration float64 // seconds; 0 means DefaultImageDuration
}

func (s ImageSource) SourceURL() string { return s.URL }
func (ImageSource) isSource()           {}

// ClipDuration returns the duration the synthesized clip should have.
func (s ImageSource) ClipDuration() float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return DefaultImageDuration
}

// RGB is a color in decimal components, 0-255 each.
type RGB struct {
	R, G, B int
}

// OverlayBase carries the fields common to every overlay kind. X and Y are
// percentages of frame width/height, 0-100.
type OverlayBase struct {
	ID      string
	Start   float64
	End     float64
	X       float64
	Y       float64
	Opacity float64 // 0-1; 0 means fully opaque (unset)
}

// Window returns the overlay's active time window.
func (b OverlayBase) Window() (float64, float64) { return b.Start, b.End }

// OverlayID returns the overlay's identifier.
func (b OverlayBase) OverlayID() string { return b.ID }

// Alpha returns the effective opacity, treating unset as opaque.
func (b OverlayBase) Alpha() float64 {
	if b.Opacity <= 0 || b.Opacity > 1 {
		return 1
	}
	return b.Opacity
}

// Overlay is a sealed set: TextOverlay, ImageOverlay or ShapeOverlay.
type Overlay interface {
	Window() (start, end float64)
	OverlayID() string
	isOverlay()
}

// TextOverlay draws a text string, optionally on a translucent box.
type TextOverlay struct {
	OverlayBase
	Text      string
	FontSize  int
	FontColor string // ffmpeg color name or hex; empty = white
	BoxColor  string // empty or "transparent" = no box drawn
}

func (TextOverlay) isOverlay() {}

// ImageOverlay composites a still image scaled to explicit pixel dimensions.
type ImageOverlay struct {
	OverlayBase
	URL    string
	Width  int // pixels
	Height int // pixels
}

func (ImageOverlay) isOverlay() {}

// ShapeKind enumerates the supported shape overlays.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
)

// ShapeOverlay draws a rectangle, filled or stroked.
type ShapeOverlay struct {
	OverlayBase
	Shape       ShapeKind
	Width       int // pixels
	Height      int // pixels
	Filled      bool
	StrokeWidth int // ignored when Filled
	Color       RGB
}

func (ShapeOverlay) isOverlay() {}

// EditPlan is the top-level, immutable render request. One plan produces
// exactly one job.
type EditPlan struct {
	Sources   []Source
	TrimStart float64
	TrimEnd   float64 // 0 means "to the end of the material"
	Cuts      []timeline.TimeRange
	Overlays  []Overlay
	Format    string // output container, e.g. "mp4"
}

// OutputFormat returns the requested container, defaulting to mp4.
func (p *EditPlan) OutputFormat() string {
	if p.Format != "" {
		return p.Format
	}
	return "mp4"
}

// Validate checks semantic impossibilities the schema layer cannot catch.
// The caller has already validated structure (URLs, numeric types).
func (p *EditPlan) Validate() error {
	if len(p.Sources) == 0 {
		return ErrNoSources
	}
	// A zero trim end is resolved against the material's real duration
	// later; only an explicit end can be inverted here.
	if p.TrimEnd < 0 || (p.TrimEnd > 0 && p.TrimStart >= p.TrimEnd) {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidTrim, p.TrimStart, p.TrimEnd)
	}
	if p.TrimStart < 0 {
		return fmt.Errorf("%w: start=%.3f", ErrInvalidTrim, p.TrimStart)
	}
	for _, o := range p.Overlays {
		start, end := o.Window()
		if start >= end {
			return fmt.Errorf("%w: overlay %q start=%.3f end=%.3f", ErrInvalidWindow, o.OverlayID(), start, end)
		}
	}
	return nil
}

// HasOverlays reports whether the plan requires overlay compositing.
func (p *EditPlan) HasOverlays() bool {
	return len(p.Overlays) > 0
}
