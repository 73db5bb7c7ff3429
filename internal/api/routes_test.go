package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/render-agent/internal/plan"
	"github.com/clipforge/render-agent/internal/render"
	"github.com/clipforge/render-agent/internal/store"
)

type fakeRenderService struct {
	submitted *plan.EditPlan
	submitErr error
	job       *store.Job
	jobs      []*store.Job
}

func (f *fakeRenderService) Submit(ctx context.Context, p *plan.EditPlan) (*render.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = p
	return render.NewJob(p), nil
}

func (f *fakeRenderService) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return f.job, nil
}

func (f *fakeRenderService) ListJobs(ctx context.Context, limit int) ([]*store.Job, error) {
	return f.jobs, nil
}

func testServerConfig(svc RenderService) ServerConfig {
	return ServerConfig{
		Port:            0,
		RenderService:   svc,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime:       time.Now(),
		Version:         "test",
		EngineAvailable: true,
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHealthHandler(t *testing.T) {
	cfg := testServerConfig(&fakeRenderService{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["engine_available"] != true {
		t.Errorf("engine_available = %v, want true", body["engine_available"])
	}
}

func TestRenderHandler_Accepted(t *testing.T) {
	svc := &fakeRenderService{}
	cfg := testServerConfig(svc)

	payload := `{
		"sources": [{"kind": "video", "url": "http://example.com/a.mp4"}],
		"trim_start": 0,
		"trim_end": 60,
		"cuts": [{"start": 10, "end": 20}]
	}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(payload))
	renderHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["job_id"] == "" {
		t.Error("job_id missing from response")
	}

	if svc.submitted == nil {
		t.Fatal("plan not submitted")
	}
	if len(svc.submitted.Sources) != 1 || len(svc.submitted.Cuts) != 1 {
		t.Errorf("submitted plan = %+v", svc.submitted)
	}
}

func TestRenderHandler_InvalidBody(t *testing.T) {
	cfg := testServerConfig(&fakeRenderService{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader("{not json"))
	renderHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRenderHandler_UnknownSourceKind(t *testing.T) {
	cfg := testServerConfig(&fakeRenderService{})

	payload := `{"sources": [{"kind": "hologram", "url": "x"}], "trim_end": 10}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(payload))
	renderHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRenderHandler_PlanningErrorIs400(t *testing.T) {
	svc := &fakeRenderService{submitErr: &render.PlanningError{Reason: "no sources"}}
	cfg := testServerConfig(svc)

	payload := `{"sources": [{"url": "a.mp4"}], "trim_end": 10}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(payload))
	renderHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "INVALID_PLAN" {
		t.Errorf("code = %v, want INVALID_PLAN", body["code"])
	}
}

func TestRenderHandler_EngineUnavailable(t *testing.T) {
	cfg := testServerConfig(&fakeRenderService{})
	cfg.EngineAvailable = false

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader("{}"))
	renderHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestGetJobHandler_NotFound(t *testing.T) {
	cfg := testServerConfig(&fakeRenderService{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/nope", nil)
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGetJobHandler_Found(t *testing.T) {
	now := time.Now()
	svc := &fakeRenderService{job: &store.Job{
		ID:        "abc",
		Status:    store.StatusRunning,
		Phase:     "extracting",
		Progress:  42,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	cfg := testServerConfig(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/abc", nil)
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["phase"] != "extracting" {
		t.Errorf("phase = %v, want extracting", body["phase"])
	}
	if body["progress"] != float64(42) {
		t.Errorf("progress = %v, want 42", body["progress"])
	}
}

func TestListJobsHandler(t *testing.T) {
	now := time.Now()
	svc := &fakeRenderService{jobs: []*store.Job{
		{ID: "a", Status: store.StatusCompleted, CreatedAt: now, UpdatedAt: now},
		{ID: "b", Status: store.StatusFailed, CreatedAt: now, UpdatedAt: now},
	}}
	cfg := testServerConfig(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp JobsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(resp.Jobs))
	}
}

func TestJobOutputHandler_NotReady(t *testing.T) {
	now := time.Now()
	svc := &fakeRenderService{job: &store.Job{
		ID: "abc", Status: store.StatusRunning, CreatedAt: now, UpdatedAt: now,
	}}
	cfg := testServerConfig(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/abc/output", nil)
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestJobOutputHandler_ServesFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "abc.mp4")
	if err := os.WriteFile(outPath, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	svc := &fakeRenderService{job: &store.Job{
		ID: "abc", Status: store.StatusCompleted, OutputPath: outPath,
		CreatedAt: now, UpdatedAt: now,
	}}
	cfg := testServerConfig(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/abc/output", nil)
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != "video-bytes" {
		t.Errorf("body = %q, want video bytes", rr.Body.String())
	}
}

func TestToEditPlan_OverlayKinds(t *testing.T) {
	req := RenderRequest{
		Sources: []SourceRequest{{Kind: "image", URL: "bg.png", Duration: 4}},
		TrimEnd: 4,
		Overlays: []OverlayRequest{
			{Kind: "text", ID: "t", Start: 0, End: 2, Text: "hi"},
			{Kind: "image", ID: "i", Start: 1, End: 3, URL: "logo.png", Width: 50, Height: 50},
			{Kind: "shape", ID: "s", Start: 0, End: 4, Width: 100, Height: 20, Filled: true, Color: &ColorRequest{R: 255}},
		},
	}

	p, err := req.ToEditPlan()
	if err != nil {
		t.Fatalf("ToEditPlan() error = %v", err)
	}
	if len(p.Overlays) != 3 {
		t.Fatalf("overlays = %d, want 3", len(p.Overlays))
	}
	if _, ok := p.Overlays[0].(plan.TextOverlay); !ok {
		t.Errorf("overlay 0 = %T, want TextOverlay", p.Overlays[0])
	}
	if _, ok := p.Overlays[1].(plan.ImageOverlay); !ok {
		t.Errorf("overlay 1 = %T, want ImageOverlay", p.Overlays[1])
	}
	shape, ok := p.Overlays[2].(plan.ShapeOverlay)
	if !ok {
		t.Fatalf("overlay 2 = %T, want ShapeOverlay", p.Overlays[2])
	}
	if shape.Shape != plan.ShapeRectangle {
		t.Errorf("shape = %s, want rectangle default", shape.Shape)
	}
	if shape.Color.R != 255 {
		t.Errorf("color.R = %d, want 255", shape.Color.R)
	}

	img, _ := p.Sources[0].(plan.ImageSource)
	if img.Duration != 4 {
		t.Errorf("image duration = %v, want 4", img.Duration)
	}
}

func TestToEditPlan_ImageOverlayRequiresURL(t *testing.T) {
	req := RenderRequest{
		Sources:  []SourceRequest{{URL: "a.mp4"}},
		TrimEnd:  10,
		Overlays: []OverlayRequest{{Kind: "image", Start: 0, End: 1}},
	}
	if _, err := req.ToEditPlan(); err == nil {
		t.Fatal("ToEditPlan() accepted image overlay without url")
	}
}
