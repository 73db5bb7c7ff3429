package api

import (
	"fmt"
	"time"

	"github.com/clipforge/render-agent/internal/plan"
	"github.com/clipforge/render-agent/internal/store"
	"github.com/clipforge/render-agent/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Engine  bool   `json:"engine_available"`
}

// RenderRequest is the wire form of an edit plan. Sources and overlays are
// kind-tagged unions; unknown kinds are rejected rather than ignored.
type RenderRequest struct {
	Sources   []SourceRequest  `json:"sources"`
	TrimStart float64          `json:"trim_start"`
	TrimEnd   float64          `json:"trim_end"`
	Cuts      []RangeRequest   `json:"cuts,omitempty"`
	Overlays  []OverlayRequest `json:"overlays,omitempty"`
	Format    string           `json:"format,omitempty"`
}

type SourceRequest struct {
	Kind     string  `json:"kind"` // "video" or "image"
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"` // image sources only
}

type RangeRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type OverlayRequest struct {
	Kind    string  `json:"kind"` // "text", "image" or "shape"
	ID      string  `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Opacity float64 `json:"opacity,omitempty"`

	Text      string `json:"text,omitempty"`
	FontSize  int    `json:"font_size,omitempty"`
	FontColor string `json:"font_color,omitempty"`
	BoxColor  string `json:"box_color,omitempty"`

	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`

	Shape       string        `json:"shape,omitempty"`
	Filled      bool          `json:"filled,omitempty"`
	StrokeWidth int           `json:"stroke_width,omitempty"`
	Color       *ColorRequest `json:"color,omitempty"`
}

type ColorRequest struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type RenderResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Phase      string `json:"phase"`
	Progress   int    `json:"progress"`
	OutputPath string `json:"output_path,omitempty"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
	Transcoded bool   `json:"transcoded"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ToEditPlan converts the wire request into the internal plan form.
func (r *RenderRequest) ToEditPlan() (*plan.EditPlan, error) {
	p := &plan.EditPlan{
		TrimStart: r.TrimStart,
		TrimEnd:   r.TrimEnd,
		Format:    r.Format,
	}

	for i, s := range r.Sources {
		switch s.Kind {
		case "video", "":
			p.Sources = append(p.Sources, plan.VideoSource{URL: s.URL})
		case "image":
			p.Sources = append(p.Sources, plan.ImageSource{URL: s.URL, Duration: s.Duration})
		default:
			return nil, fmt.Errorf("source %d: unknown kind %q", i, s.Kind)
		}
	}

	for _, c := range r.Cuts {
		p.Cuts = append(p.Cuts, timeline.TimeRange{Start: c.Start, End: c.End})
	}

	for i, o := range r.Overlays {
		base := plan.OverlayBase{
			ID:      o.ID,
			Start:   o.Start,
			End:     o.End,
			X:       o.X,
			Y:       o.Y,
			Opacity: o.Opacity,
		}
		if base.ID == "" {
			base.ID = fmt.Sprintf("overlay_%d", i)
		}

		switch o.Kind {
		case "text":
			p.Overlays = append(p.Overlays, plan.TextOverlay{
				OverlayBase: base,
				Text:        o.Text,
				FontSize:    o.FontSize,
				FontColor:   o.FontColor,
				BoxColor:    o.BoxColor,
			})
		case "image":
			if o.URL == "" {
				return nil, fmt.Errorf("overlay %d: image overlay requires url", i)
			}
			p.Overlays = append(p.Overlays, plan.ImageOverlay{
				OverlayBase: base,
				URL:         o.URL,
				Width:       o.Width,
				Height:      o.Height,
			})
		case "shape":
			shape := plan.ShapeOverlay{
				OverlayBase: base,
				Shape:       plan.ShapeKind(o.Shape),
				Width:       o.Width,
				Height:      o.Height,
				Filled:      o.Filled,
				StrokeWidth: o.StrokeWidth,
			}
			if shape.Shape == "" {
				shape.Shape = plan.ShapeRectangle
			}
			if o.Color != nil {
				shape.Color = plan.RGB{R: o.Color.R, G: o.Color.G, B: o.Color.B}
			}
			p.Overlays = append(p.Overlays, shape)
		default:
			return nil, fmt.Errorf("overlay %d: unknown kind %q", i, o.Kind)
		}
	}

	return p, nil
}

func JobToResponse(j *store.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Status:     j.Status,
		Phase:      j.Phase,
		Progress:   j.Progress,
		OutputPath: j.OutputPath,
		Warning:    j.Warning,
		Error:      j.Error,
		Transcoded: j.Transcoded,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}
