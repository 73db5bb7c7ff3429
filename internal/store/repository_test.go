package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/render-agent/internal/db"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func newTestJob(id string) *Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &Job{
		ID:        id,
		Status:    StatusPending,
		Phase:     "planning",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	want := newTestJob("job-1")
	if err := repo.CreateJob(ctx, want); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetJob() returned nil for existing job")
	}
	if got.Status != StatusPending || got.Phase != "planning" || got.Progress != 0 {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestGetJob_Missing(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetJob() = %+v, want nil", got)
	}
}

func TestJobLifecycleUpdates(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.CreateJob(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := repo.UpdateJobStatus(ctx, "job-1", StatusRunning, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	if err := repo.UpdateJobPhase(ctx, "job-1", "extracting"); err != nil {
		t.Fatalf("UpdateJobPhase() error = %v", err)
	}
	if err := repo.UpdateJobProgress(ctx, "job-1", 35); err != nil {
		t.Fatalf("UpdateJobProgress() error = %v", err)
	}

	got, _ := repo.GetJob(ctx, "job-1")
	if got.Status != StatusRunning || got.Phase != "extracting" || got.Progress != 35 {
		t.Errorf("got %+v", got)
	}

	if err := repo.MarkJobDone(ctx, "job-1", "/out/job-1.mp4", "some warning", true); err != nil {
		t.Fatalf("MarkJobDone() error = %v", err)
	}
	got, _ = repo.GetJob(ctx, "job-1")
	if got.Status != StatusCompleted || got.Phase != "done" || got.Progress != 100 {
		t.Errorf("got %+v", got)
	}
	if got.OutputPath != "/out/job-1.mp4" || got.Warning != "some warning" || !got.Transcoded {
		t.Errorf("outcome fields: %+v", got)
	}
}

func TestMarkJobFailed(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.CreateJob(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := repo.MarkJobFailed(ctx, "job-1", "download failed"); err != nil {
		t.Fatalf("MarkJobFailed() error = %v", err)
	}

	got, _ := repo.GetJob(ctx, "job-1")
	if got.Status != StatusFailed || got.Phase != "failed" {
		t.Errorf("got %+v", got)
	}
	if got.Error != "download failed" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	older := newTestJob("old")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	if err := repo.CreateJob(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateJob(ctx, newTestJob("new")); err != nil {
		t.Fatal(err)
	}

	jobs, err := repo.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "new" || jobs[1].ID != "old" {
		t.Errorf("order = [%s, %s], want [new, old]", jobs[0].ID, jobs[1].ID)
	}
}

func TestListJobs_Limit(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		j := newTestJob(string(rune('a' + i)))
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		j.UpdatedAt = j.CreatedAt
		if err := repo.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := repo.ListJobs(ctx, 3)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("jobs = %d, want 3", len(jobs))
	}
}
