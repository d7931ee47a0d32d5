package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
	"github.com/facadelab/restyle/internal/store"
)

// seedImage creates an org, project, and image for dispatch tests.
func seedImage(t *testing.T, r *repo.Repos) (orgID, projectID, imageID string) {
	t.Helper()
	ctx := context.Background()
	org, err := r.Organizations.Create(ctx, "Facade Labs", 0)
	if err != nil {
		t.Fatalf("create org failed: %v", err)
	}
	project, err := r.Projects.Create(ctx, org.ID, "Tower", "", "")
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}
	image, err := r.Images.Create(ctx, org.ID, project.ID, "front.jpg", "s3://front.jpg")
	if err != nil {
		t.Fatalf("create image failed: %v", err)
	}
	return org.ID, project.ID, image.ID
}

func TestStartSegmentation_HappyPath(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	orgID, projectID, imageID := seedImage(t, r)

	var gotRequestID string
	var gotPayload segmentationPayload
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotRequestID = req.Header.Get("X-Request-Id")
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("worker received bad payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"executionId":"exec-1"}`))
	}))
	defer worker.Close()

	d := New(r, NewWorkerClient(worker.URL), nil, "https://api.example.com")
	job, err := d.StartSegmentation(ctx, SegmentationRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if job.Status != model.StatusProcessing {
		t.Errorf("expected PROCESSING job, got %s", job.Status)
	}
	if job.ExternalExecutionID != "exec-1" {
		t.Errorf("expected execution id recorded, got %q", job.ExternalExecutionID)
	}
	if gotRequestID != job.ID {
		t.Errorf("expected X-Request-Id %s, got %s", job.ID, gotRequestID)
	}
	if gotPayload.JobID != job.ID || gotPayload.ImageID != imageID {
		t.Errorf("unexpected worker payload: %+v", gotPayload)
	}
	if gotPayload.CallbackURL != "https://api.example.com/callbacks/segmentation" {
		t.Errorf("unexpected callback URL %q", gotPayload.CallbackURL)
	}
	if gotPayload.Metadata["imageId"] != imageID || gotPayload.Metadata["projectId"] != projectID {
		t.Errorf("correlation metadata missing: %+v", gotPayload.Metadata)
	}

	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusProcessing {
		t.Errorf("expected image PROCESSING, got %s", image.SegmentationStatus)
	}

	stored, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), job.ID)
	if stored == nil || stored.Status != model.StatusProcessing {
		t.Errorf("expected stored job PROCESSING, got %+v", stored)
	}
}

func TestStartSegmentation_DoubleDispatchConflicts(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	orgID, projectID, imageID := seedImage(t, r)

	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer worker.Close()

	d := New(r, NewWorkerClient(worker.URL), nil, "https://api.example.com")
	req := SegmentationRequest{OrganizationID: orgID, ProjectID: projectID, ImageID: imageID}

	if _, err := d.StartSegmentation(ctx, req); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	_, err := d.StartSegmentation(ctx, req)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected Conflict on second dispatch, got %v", err)
	}
}

func TestStartSegmentation_UnknownImage(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	d := New(r, nil, nil, "https://api.example.com")

	_, err := d.StartSegmentation(context.Background(), SegmentationRequest{
		ProjectID: "missing",
		ImageID:   "missing",
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestStartSegmentation_WorkerErrorFailsJobAndImage(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	orgID, projectID, imageID := seedImage(t, r)

	var dispatchedJobID string
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var p segmentationPayload
		body, _ := io.ReadAll(req.Body)
		json.Unmarshal(body, &p)
		dispatchedJobID = p.JobID
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer worker.Close()

	d := New(r, NewWorkerClient(worker.URL), nil, "https://api.example.com")
	_, err := d.StartSegmentation(ctx, SegmentationRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
	})
	if apperr.KindOf(err) != apperr.KindServiceUnavailable {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}

	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusFailed {
		t.Errorf("expected image FAILED, got %s", image.SegmentationStatus)
	}

	job, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), dispatchedJobID)
	if job == nil || job.Status != model.StatusFailed {
		t.Fatalf("expected job FAILED, got %+v", job)
	}
	if job.ErrorCode != "WORKER_UNAVAILABLE" {
		t.Errorf("expected WORKER_UNAVAILABLE, got %q", job.ErrorCode)
	}
}

func TestStartRender_RequiresCompletedSegmentation(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	orgID, projectID, imageID := seedImage(t, r)
	version, err := r.Versions.Create(ctx, orgID, projectID, imageID, "warm brick")
	if err != nil {
		t.Fatalf("create version failed: %v", err)
	}

	d := New(r, nil, nil, "https://api.example.com")
	_, err = d.StartRender(ctx, RenderRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
		VersionID:      version.ID,
	})
	if apperr.KindOf(err) != apperr.KindPreconditionFailed {
		t.Errorf("expected PreconditionFailed, got %v", err)
	}
}

func TestStartRender_HappyPath(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	orgID, projectID, imageID := seedImage(t, r)

	if err := r.Images.MarkSegmenting(ctx, projectID, imageID); err != nil {
		t.Fatalf("mark segmenting failed: %v", err)
	}
	if err := r.Images.CompleteSegmentation(ctx, projectID, imageID, "s3://seg.png"); err != nil {
		t.Fatalf("complete segmentation failed: %v", err)
	}
	version, err := r.Versions.Create(ctx, orgID, projectID, imageID, "warm brick")
	if err != nil {
		t.Fatalf("create version failed: %v", err)
	}
	if _, err := r.RegionMaterials.Assign(ctx, version.ID, "reg-1", "mat-1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if _, err := r.RegionMaterials.Assign(ctx, version.ID, "reg-2", "mat-2"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	var gotPayload renderPayload
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("worker received bad payload: %v", err)
		}
		w.Write([]byte(`{"executionId":"exec-9"}`))
	}))
	defer worker.Close()

	d := New(r, nil, NewWorkerClient(worker.URL), "https://api.example.com")
	job, err := d.StartRender(ctx, RenderRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
		VersionID:      version.ID,
		Quality:        "final",
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if job.Status != model.StatusProcessing || job.ExternalExecutionID != "exec-9" {
		t.Errorf("unexpected job after dispatch: %+v", job)
	}
	if len(gotPayload.Assignments) != 2 {
		t.Errorf("expected 2 assignments in payload, got %d", len(gotPayload.Assignments))
	}
	if gotPayload.Quality != "final" {
		t.Errorf("expected quality forwarded, got %q", gotPayload.Quality)
	}
	if gotPayload.CallbackURL != "https://api.example.com/callbacks/render" {
		t.Errorf("unexpected callback URL %q", gotPayload.CallbackURL)
	}

	got, _ := r.Versions.Get(ctx, imageID, version.ID)
	if got.RenderStatus != model.StatusProcessing {
		t.Errorf("expected version PROCESSING, got %s", got.RenderStatus)
	}
}

func TestStartRender_UnknownVersion(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	d := New(r, nil, nil, "https://api.example.com")

	_, err := d.StartRender(context.Background(), RenderRequest{
		ProjectID: "p",
		ImageID:   "i",
		VersionID: "missing",
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
