package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clipforge/render-agent/internal/plan"
	"github.com/clipforge/render-agent/internal/store"
)

// Service accepts edit plans, runs them asynchronously through the pipeline
// and mirrors their state into the store.
type Service struct {
	pipeline *Pipeline
	repo     store.Repository
	logger   *slog.Logger

	// ctx is cancelled by Stop; every render runs under it, so cancellation
	// reaches the engine's child processes through CommandContext.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(pipeline *Pipeline, repo store.Repository, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{pipeline: pipeline, repo: repo, logger: logger, ctx: ctx, cancel: cancel}
}

// Submit validates the plan, records the job and starts the render in the
// background. Validation failures are reported synchronously as
// *PlanningError so the caller can reject the request outright.
func (s *Service) Submit(ctx context.Context, p *plan.EditPlan) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, &PlanningError{Reason: err.Error()}
	}

	job := NewJob(p)
	record := &store.Job{
		ID:        job.ID,
		Status:    store.StatusPending,
		Phase:     string(PhasePlanning),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.CreatedAt,
	}
	if err := s.repo.CreateJob(ctx, record); err != nil {
		return nil, err
	}

	job.Tracker.OnPublish(func(percent int) {
		if err := s.repo.UpdateJobProgress(context.Background(), job.ID, percent); err != nil && s.logger != nil {
			s.logger.Warn("progress update failed", "job_id", job.ID, "error", err)
		}
	})
	job.OnPhase = func(ph Phase) {
		if ph == PhaseDone || ph == PhaseFailed {
			// Terminal state is written by the run loop together with the
			// outcome fields.
			return
		}
		if err := s.repo.UpdateJobPhase(context.Background(), job.ID, string(ph)); err != nil && s.logger != nil {
			s.logger.Warn("phase update failed", "job_id", job.ID, "error", err)
		}
	}

	s.wg.Add(1)
	go s.run(job)
	return job, nil
}

// GetJob returns the persisted state of a job, or nil when unknown.
func (s *Service) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return s.repo.GetJob(ctx, id)
}

// ListJobs returns recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*store.Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

// Stop cancels all in-flight renders. Their ffmpeg processes are killed
// through context cancellation and the jobs are recorded as failed.
func (s *Service) Stop() {
	s.cancel()
}

// Wait blocks until all in-flight renders have finished. Used during
// shutdown so the process does not orphan half-written outputs.
func (s *Service) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Service) run(job *Job) {
	defer s.wg.Done()

	// Bookkeeping writes use a background context so a cancelled render is
	// still recorded as failed.
	dbCtx := context.Background()
	if err := s.repo.UpdateJobStatus(dbCtx, job.ID, store.StatusRunning, ""); err != nil && s.logger != nil {
		s.logger.Warn("status update failed", "job_id", job.ID, "error", err)
	}

	result, err := s.pipeline.Render(s.ctx, job)
	if err != nil {
		if dbErr := s.repo.MarkJobFailed(dbCtx, job.ID, err.Error()); dbErr != nil && s.logger != nil {
			s.logger.Error("failed to record job failure", "job_id", job.ID, "error", dbErr)
		}
		return
	}

	if dbErr := s.repo.MarkJobDone(dbCtx, job.ID, result.OutputPath, result.Warning, result.Transcoded); dbErr != nil && s.logger != nil {
		s.logger.Error("failed to record job completion", "job_id", job.ID, "error", dbErr)
	}
}
