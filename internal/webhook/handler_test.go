package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
	"github.com/facadelab/restyle/internal/store"
)

const testSecret = "test-webhook-secret"

// signPayload computes the signature header value for a body.
func signPayload(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// seedSegmentationJob creates an image mid-segmentation with its
// PROCESSING job, mirroring the state the dispatcher leaves behind.
func seedSegmentationJob(t *testing.T, r *repo.Repos) (projectID, imageID, jobID string) {
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

	input, _ := json.Marshal(map[string]string{"imageId": image.ID, "projectId": project.ID})
	job, err := r.RenderJobs.Create(ctx, repo.CreateJobInput{
		Owner:        model.ImageOwner(image.ID),
		JobType:      model.JobTypeSegmentation,
		InputPayload: input,
	})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if err := r.Images.MarkSegmenting(ctx, project.ID, image.ID); err != nil {
		t.Fatalf("mark segmenting failed: %v", err)
	}
	if err := r.RenderJobs.MarkProcessing(ctx, model.ImageOwner(image.ID), job.ID, "exec-1"); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	return project.ID, image.ID, job.ID
}

// postCallback sends a signed callback to the handler and returns the
// recorder. An empty signature means the header is omitted entirely.
func postCallback(h http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callbacks/segmentation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestCallback_SegmentationSuccess(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      jobID,
		"success":    true,
		"result_url": "s3://seg.png",
		"metadata":   map[string]string{"imageId": imageID, "projectId": projectID},
		"regions": []map[string]interface{}{
			{"label": "wall", "maskUrl": "s3://m1.png", "confidence": 0.97, "area": 1200, "boundingBox": map[string]float64{"x": 0, "y": 0, "width": 40, "height": 30}},
			{"label": "wall", "maskUrl": "s3://m2.png", "confidence": 0.91},
			{"label": "roof", "maskUrl": "s3://m3.png", "confidence": 0.88},
		},
	})

	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	job, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), jobID)
	if job.Status != model.StatusDone || job.ResultURL != "s3://seg.png" {
		t.Errorf("unexpected job after callback: %+v", job)
	}

	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusDone {
		t.Errorf("expected image DONE, got %s", image.SegmentationStatus)
	}
	if image.SegmentationURL != "s3://seg.png" {
		t.Errorf("expected result URL on image, got %q", image.SegmentationURL)
	}

	regions, _, err := r.Regions.ListByImage(ctx, imageID, 0, "")
	if err != nil {
		t.Fatalf("list regions failed: %v", err)
	}
	if len(regions) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(regions))
	}
	names := make(map[string]bool, len(regions))
	for _, region := range regions {
		names[region.Name] = true
	}
	for _, want := range []string{"wall 1", "wall 2", "roof 1"} {
		if !names[want] {
			t.Errorf("missing region %q, have %v", want, names)
		}
	}
	for _, region := range regions {
		if region.Name == "wall 1" && region.Confidence != 0.97 {
			t.Errorf("descriptor fields not retained: %+v", region)
		}
	}
}

func TestCallback_RecoversProjectIDFromStoredPayload(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	// Worker echoes only the owner id; projectId comes from the job's
	// stored input payload.
	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      jobID,
		"success":    true,
		"result_url": "s3://seg.png",
		"metadata":   map[string]string{"imageId": imageID},
	})

	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusDone {
		t.Errorf("expected image DONE, got %s", image.SegmentationStatus)
	}
}

func TestCallback_BadSignatureRejectedBeforeStateChange(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":    jobID,
		"success":  true,
		"metadata": map[string]string{"imageId": imageID},
	})

	w := postCallback(h.Segmentation, body, "sha256="+hex.EncodeToString(make([]byte, 32)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	job, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), jobID)
	if job.Status != model.StatusProcessing {
		t.Errorf("job state changed despite bad signature: %s", job.Status)
	}
	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusProcessing {
		t.Errorf("image state changed despite bad signature: %s", image.SegmentationStatus)
	}
}

func TestCallback_MissingSignatureAcceptedUnverified(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	_, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      jobID,
		"success":    true,
		"result_url": "s3://seg.png",
		"metadata":   map[string]string{"imageId": imageID},
	})

	w := postCallback(h.Segmentation, body, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for unsigned callback, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCallback_MissingMetadataIsBadRequest(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":   "seg-deadbeef",
		"success": true,
	})

	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCallback_UnknownJobIsNotFound(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":    "seg-deadbeef",
		"success":  true,
		"metadata": map[string]string{"imageId": "img-1"},
	})

	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCallback_TerminalReplayIsIgnored(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      jobID,
		"success":    true,
		"result_url": "s3://seg.png",
		"metadata":   map[string]string{"imageId": imageID, "projectId": projectID},
		"regions": []map[string]interface{}{
			{"label": "wall", "maskUrl": "s3://m1.png"},
		},
	})

	if w := postCallback(h.Segmentation, body, signPayload(body)); w.Code != http.StatusOK {
		t.Fatalf("first callback failed: %d", w.Code)
	}
	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("replay should be acknowledged, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp["status"] != "ignored" {
		t.Errorf("expected ignored, got %q", resp["status"])
	}

	regions, _, _ := r.Regions.ListByImage(ctx, imageID, 0, "")
	if len(regions) != 1 {
		t.Errorf("replay duplicated regions: got %d", len(regions))
	}
}

func TestCallback_WorkerFailure(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":    jobID,
		"success":  false,
		"error":    "no building detected",
		"metadata": map[string]string{"imageId": imageID, "projectId": projectID},
	})

	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	job, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), jobID)
	if job.Status != model.StatusFailed || job.ErrorMessage != "no building detected" {
		t.Errorf("unexpected job after failure callback: %+v", job)
	}
	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusFailed {
		t.Errorf("expected image FAILED, got %s", image.SegmentationStatus)
	}
	if image.ErrorMessage != "no building detected" {
		t.Errorf("expected worker error on image, got %q", image.ErrorMessage)
	}
}

func TestCallback_RenderSuccess(t *testing.T) {
	r := repo.New(store.NewMemoryStore())
	ctx := context.Background()
	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	project, _ := r.Projects.Create(ctx, org.ID, "Tower", "", "")
	image, _ := r.Images.Create(ctx, org.ID, project.ID, "front.jpg", "")
	version, err := r.Versions.Create(ctx, org.ID, project.ID, image.ID, "warm brick")
	if err != nil {
		t.Fatalf("create version failed: %v", err)
	}

	input, _ := json.Marshal(map[string]string{
		"versionId": version.ID, "imageId": image.ID, "projectId": project.ID,
	})
	job, err := r.RenderJobs.Create(ctx, repo.CreateJobInput{
		Owner:        model.VersionOwner(version.ID),
		JobType:      model.JobTypeRender,
		InputPayload: input,
	})
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if err := r.Versions.MarkRendering(ctx, image.ID, version.ID); err != nil {
		t.Fatalf("mark rendering failed: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      job.ID,
		"success":    true,
		"result_url": "s3://render.png",
		"metadata":   map[string]string{"versionId": version.ID},
	})

	h := NewHandler(r, testSecret)
	w := postCallback(h.Render, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := r.Versions.Get(ctx, image.ID, version.ID)
	if got.RenderStatus != model.StatusDone || got.RenderURL != "s3://render.png" {
		t.Errorf("unexpected version after callback: %+v", got)
	}
	stored, _ := r.RenderJobs.GetByOwner(ctx, model.VersionOwner(version.ID), job.ID)
	if stored.Status != model.StatusDone {
		t.Errorf("expected job DONE, got %s", stored.Status)
	}
}

// throttledBatchStore fails the first BatchPut calls with a throttled
// partial failure, then delegates.
type throttledBatchStore struct {
	store.TableStore
	failures int
}

func (s *throttledBatchStore) BatchPut(ctx context.Context, items []store.PutInput) error {
	if s.failures > 0 {
		s.failures--
		return apperr.Wrap(apperr.KindThrottled, "batch write incomplete", &store.PartialFailure{Keys: []string{"IMG#x/REGION#y"}})
	}
	return s.TableStore.BatchPut(ctx, items)
}

func TestCallback_RetryAfterRegionWriteFailureCompletes(t *testing.T) {
	flaky := &throttledBatchStore{TableStore: store.NewMemoryStore(), failures: 1}
	r := repo.New(flaky)
	ctx := context.Background()
	projectID, imageID, jobID := seedSegmentationJob(t, r)
	h := NewHandler(r, testSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"jobId":      jobID,
		"success":    true,
		"result_url": "s3://seg.png",
		"metadata":   map[string]string{"imageId": imageID, "projectId": projectID},
		"regions": []map[string]interface{}{
			{"label": "wall", "maskUrl": "s3://m1.png"},
		},
	})

	// First delivery hits the throttled region write and must leave the
	// job non-terminal so the worker's retry is not answered "ignored".
	w := postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on throttled region write, got %d: %s", w.Code, w.Body.String())
	}
	job, _ := r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), jobID)
	if job.Status.Terminal() {
		t.Fatalf("job went terminal before side effects landed: %s", job.Status)
	}
	image, _ := r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusProcessing {
		t.Errorf("expected image still PROCESSING, got %s", image.SegmentationStatus)
	}
	if regions, _, _ := r.Regions.ListByImage(ctx, imageID, 0, ""); len(regions) != 0 {
		t.Errorf("expected no regions after failed batch, got %d", len(regions))
	}

	// The retry finishes the work.
	w = postCallback(h.Segmentation, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("retry failed: %d: %s", w.Code, w.Body.String())
	}
	job, _ = r.RenderJobs.GetByOwner(ctx, model.ImageOwner(imageID), jobID)
	if job.Status != model.StatusDone {
		t.Errorf("expected job DONE after retry, got %s", job.Status)
	}
	image, _ = r.Images.Get(ctx, projectID, imageID)
	if image.SegmentationStatus != model.StatusDone {
		t.Errorf("expected image DONE after retry, got %s", image.SegmentationStatus)
	}
	regions, _, _ := r.Regions.ListByImage(ctx, imageID, 0, "")
	if len(regions) != 1 {
		t.Errorf("expected 1 region after retry, got %d", len(regions))
	}
}

func TestCallback_RejectsNonPost(t *testing.T) {
	h := NewHandler(repo.New(store.NewMemoryStore()), testSecret)
	req := httptest.NewRequest(http.MethodGet, "/callbacks/segmentation", nil)
	w := httptest.NewRecorder()
	h.Segmentation(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
