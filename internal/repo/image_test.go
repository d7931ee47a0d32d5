package repo

import (
	"context"
	"testing"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/model"
)

// seedProject creates an org and a project for image-level tests.
func seedProject(t *testing.T, r *Repos) (orgID, projectID string) {
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
	return org.ID, project.ID
}

func TestImage_CreateStartsPending(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)

	image, err := r.Images.Create(ctx, orgID, projectID, "front.jpg", "s3://front.jpg")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if image.SegmentationStatus != model.StatusPending {
		t.Errorf("expected PENDING, got %s", image.SegmentationStatus)
	}

	project, _ := r.Projects.Get(ctx, orgID, projectID)
	if project.ImageCount != 1 {
		t.Errorf("expected imageCount 1, got %d", project.ImageCount)
	}
}

func TestImage_CreateMissingProject(t *testing.T) {
	r := newTestRepos()
	_, err := r.Images.Create(context.Background(), "org", "missing", "f.jpg", "")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestImage_MarkSegmentingTwiceConflicts(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)
	image, _ := r.Images.Create(ctx, orgID, projectID, "front.jpg", "")

	if err := r.Images.MarkSegmenting(ctx, projectID, image.ID); err != nil {
		t.Fatalf("first mark failed: %v", err)
	}
	err := r.Images.MarkSegmenting(ctx, projectID, image.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected Conflict on second mark, got %v", err)
	}
}

func TestImage_SegmentationLifecycle(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)
	image, _ := r.Images.Create(ctx, orgID, projectID, "front.jpg", "")

	if err := r.Images.MarkSegmenting(ctx, projectID, image.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := r.Images.CompleteSegmentation(ctx, projectID, image.ID, "s3://seg.png"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	got, _ := r.Images.Get(ctx, projectID, image.ID)
	if got.SegmentationStatus != model.StatusDone {
		t.Errorf("expected DONE, got %s", got.SegmentationStatus)
	}
	if got.SegmentationURL != "s3://seg.png" {
		t.Errorf("expected result URL, got %q", got.SegmentationURL)
	}

	// A completed image is re-dispatchable: DONE != PROCESSING.
	if err := r.Images.MarkSegmenting(ctx, projectID, image.ID); err != nil {
		t.Errorf("re-mark after DONE failed: %v", err)
	}
}

func TestImage_FailKeepsMessage(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)
	image, _ := r.Images.Create(ctx, orgID, projectID, "front.jpg", "")

	if err := r.Images.FailSegmentation(ctx, projectID, image.ID, "worker exploded"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	got, _ := r.Images.Get(ctx, projectID, image.ID)
	if got.SegmentationStatus != model.StatusFailed {
		t.Errorf("expected FAILED, got %s", got.SegmentationStatus)
	}
	if got.ErrorMessage != "worker exploded" {
		t.Errorf("expected error message, got %q", got.ErrorMessage)
	}
}

func TestRegion_CreateBatchAssignsIDs(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	regions := []*model.Region{
		{Name: "wall 1", Label: "wall", MaskURL: "s3://m1.png"},
		{Name: "roof 1", Label: "roof", MaskURL: "s3://m2.png"},
	}
	created, err := r.Regions.CreateBatch(ctx, "img-1", regions)
	if err != nil {
		t.Fatalf("batch create failed: %v", err)
	}
	for i, region := range created {
		if region.ID == "" {
			t.Errorf("region %d: missing id", i)
		}
		if region.ImageID != "img-1" {
			t.Errorf("region %d: wrong image id %s", i, region.ImageID)
		}
	}

	listed, _, err := r.Regions.ListByImage(ctx, "img-1", 0, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("expected 2 regions, got %d", len(listed))
	}
}
