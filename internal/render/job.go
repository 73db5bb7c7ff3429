package render

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/render-agent/internal/plan"
	"github.com/clipforge/render-agent/internal/progress"
	"github.com/clipforge/render-agent/internal/timeline"
)

// Phase is the pipeline stage a job is currently in. Phases advance strictly
// forward; Done and Failed are terminal.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseNormalizing   Phase = "normalizing"
	PhaseExtracting    Phase = "extracting"
	PhaseConcatenating Phase = "concatenating"
	PhaseVerifying     Phase = "verifying"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// Job is one render in flight. The pipeline mutates it; everything else
// reads through the accessor methods.
type Job struct {
	ID        string
	Plan      *plan.EditPlan
	Tracker   *progress.Tracker
	CreatedAt time.Time

	// OnPhase, when set, is called on every phase transition. Set it before
	// handing the job to the pipeline.
	OnPhase func(Phase)

	mu       sync.Mutex
	phase    Phase
	segments []timeline.TimeRange
}

func NewJob(p *plan.EditPlan) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Plan:      p,
		Tracker:   progress.NewTracker(),
		CreatedAt: time.Now().UTC(),
		phase:     PhasePlanning,
	}
}

func (j *Job) Phase() Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// Segments returns the keep-segments computed during planning; empty until
// the planning phase has run.
func (j *Job) Segments() []timeline.TimeRange {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]timeline.TimeRange, len(j.segments))
	copy(out, j.segments)
	return out
}

func (j *Job) enterPhase(p Phase) {
	j.mu.Lock()
	j.phase = p
	fn := j.OnPhase
	j.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (j *Job) setSegments(segs []timeline.TimeRange) {
	j.mu.Lock()
	j.segments = segs
	j.mu.Unlock()
}
