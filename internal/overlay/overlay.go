// Package overlay compiles timed overlay descriptors into a single ffmpeg
// filter-graph expression. Stages are chained deterministically and each is
// gated to its time window with between(t,start,end), so an overlay outside
// its window is absent from the frame entirely.
package overlay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clipforge/render-agent/internal/plan"
)

const (
	defaultFontSize  = 24
	defaultFontColor = "white"
	boxBorderWidth   = 8
)

// Graph is a compiled filter chain. Both fields are empty when there is
// nothing to composite; the orchestrator must then skip overlay arguments
// entirely.
type Graph struct {
	Filter string // value for -filter_complex
	Output string // final output stream label, e.g. "[v3]"
}

// Empty reports whether no overlay processing is needed.
func (g Graph) Empty() bool { return g.Filter == "" }

// Spec is the input to Compile.
type Spec struct {
	Overlays []plan.Overlay

	// ImagePaths maps image overlay IDs to resolved local files. Present
	// only for bookkeeping; input order is what matters to the graph.
	ImagePaths map[string]string

	// ImageInputIndex is the ffmpeg input index of the first overlay image.
	// Image inputs must be supplied in SortOverlays order.
	ImageInputIndex int

	FrameWidth    int
	FrameHeight   int
	TotalDuration float64
}

// SortOverlays returns the overlays in compilation order: ascending start
// time, ties broken by ID so the graph is reproducible byte-for-byte.
func SortOverlays(overlays []plan.Overlay) []plan.Overlay {
	sorted := append([]plan.Overlay(nil), overlays...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, _ := sorted[i].Window()
		sj, _ := sorted[j].Window()
		if si != sj {
			return si < sj
		}
		return sorted[i].OverlayID() < sorted[j].OverlayID()
	})
	return sorted
}

// ImageOverlays returns the image overlays in compilation order. The
// orchestrator adds one looped file input per entry, in this order, starting
// at Spec.ImageInputIndex.
func ImageOverlays(overlays []plan.Overlay) []plan.ImageOverlay {
	var images []plan.ImageOverlay
	for _, o := range SortOverlays(overlays) {
		if img, ok := o.(plan.ImageOverlay); ok {
			images = append(images, img)
		}
	}
	return images
}

// Compile builds the filter chain. Stage i reads the output of stage i-1;
// stage 0 reads the base video stream [0:v].
func Compile(spec Spec) (Graph, error) {
	if len(spec.Overlays) == 0 {
		return Graph{}, nil
	}
	if spec.FrameWidth <= 0 || spec.FrameHeight <= 0 {
		return Graph{}, fmt.Errorf("invalid frame dimensions %dx%d", spec.FrameWidth, spec.FrameHeight)
	}

	sorted := SortOverlays(spec.Overlays)

	var filters []string
	current := "[0:v]"
	imageInput := spec.ImageInputIndex

	for i, o := range sorted {
		label := fmt.Sprintf("[v%d]", i+1)
		start, end := clipWindow(o, spec.TotalDuration)

		switch ov := o.(type) {
		case plan.TextOverlay:
			filters = append(filters, textStage(ov, current, label, spec, start, end))

		case plan.ImageOverlay:
			prep, stage := imageStages(ov, current, label, spec, imageInput, i, start, end)
			filters = append(filters, prep, stage)
			imageInput++

		case plan.ShapeOverlay:
			filters = append(filters, shapeStage(ov, current, label, spec, start, end))

		default:
			return Graph{}, fmt.Errorf("unknown overlay kind %T", o)
		}

		current = label
	}

	return Graph{Filter: strings.Join(filters, ";"), Output: current}, nil
}

func textStage(o plan.TextOverlay, in, out string, spec Spec, start, end float64) string {
	fontSize := o.FontSize
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	fontColor := o.FontColor
	if fontColor == "" {
		fontColor = defaultFontColor
	}

	x, y := pixelPosition(o.OverlayBase, spec)

	var b strings.Builder
	fmt.Fprintf(&b, "%sdrawtext=text='%s':fontsize=%d:fontcolor=%s@%.2f:x=%d:y=%d",
		in, escapeDrawtext(o.Text), fontSize, fontColor, o.Alpha(), x, y)

	// An explicitly transparent background means no box at all, not an
	// invisible one.
	if o.BoxColor != "" && !strings.EqualFold(o.BoxColor, "transparent") {
		fmt.Fprintf(&b, ":box=1:boxcolor=%s@%.2f:boxborderw=%d", o.BoxColor, o.Alpha()*0.5, boxBorderWidth)
	}

	fmt.Fprintf(&b, ":enable='between(t,%.3f,%.3f)'%s", start, end, out)
	return b.String()
}

func imageStages(o plan.ImageOverlay, in, out string, spec Spec, inputIndex, stageIndex int, start, end float64) (string, string) {
	scaled := fmt.Sprintf("[ov%d]", stageIndex+1)

	// Explicit pixel dimensions, aspect ratio preserved.
	prep := fmt.Sprintf("[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease",
		inputIndex, o.Width, o.Height)
	if o.Alpha() < 1 {
		prep += fmt.Sprintf(",format=rgba,colorchannelmixer=aa=%.2f", o.Alpha())
	}
	prep += scaled

	x, y := pixelPosition(o.OverlayBase, spec)
	stage := fmt.Sprintf("%s%soverlay=%d:%d:enable='between(t,%.3f,%.3f)'%s",
		in, scaled, x, y, start, end, out)

	return prep, stage
}

func shapeStage(o plan.ShapeOverlay, in, out string, spec Spec, start, end float64) string {
	x, y := pixelPosition(o.OverlayBase, spec)

	thickness := "fill"
	if !o.Filled {
		width := o.StrokeWidth
		if width <= 0 {
			width = 1
		}
		thickness = fmt.Sprintf("%d", width)
	}

	return fmt.Sprintf("%sdrawbox=x=%d:y=%d:w=%d:h=%d:color=%s:t=%s:enable='between(t,%.3f,%.3f)'%s",
		in, x, y, o.Width, o.Height, shapeColor(o), thickness, start, end, out)
}

// shapeColor converts decimal color components to ffmpeg hex notation, with
// an alpha channel derived from the overlay's opacity when translucent.
func shapeColor(o plan.ShapeOverlay) string {
	hex := fmt.Sprintf("0x%02X%02X%02X", clampByte(o.Color.R), clampByte(o.Color.G), clampByte(o.Color.B))
	if a := o.Alpha(); a < 1 {
		return fmt.Sprintf("%s@%.2f", hex, a)
	}
	return hex
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// pixelPosition converts the percentage coordinates to pixels.
func pixelPosition(b plan.OverlayBase, spec Spec) (int, int) {
	x := int(b.X / 100 * float64(spec.FrameWidth))
	y := int(b.Y / 100 * float64(spec.FrameHeight))
	return x, y
}

// clipWindow clamps the overlay window to [0, totalDuration].
func clipWindow(o plan.Overlay, total float64) (float64, float64) {
	start, end := o.Window()
	if start < 0 {
		start = 0
	}
	if total > 0 && end > total {
		end = total
	}
	return start, end
}

// escapeDrawtext escapes the characters ffmpeg's drawtext filter treats as
// special inside a quoted text value.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
