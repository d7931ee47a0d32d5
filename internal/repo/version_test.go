package repo

import (
	"context"
	"testing"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/model"
)

func TestVersion_SequentialNumbering(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)
	image, _ := r.Images.Create(ctx, orgID, projectID, "front.jpg", "")

	for want := 1; want <= 3; want++ {
		version, err := r.Versions.Create(ctx, orgID, projectID, image.ID, "")
		if err != nil {
			t.Fatalf("create %d failed: %v", want, err)
		}
		if version.VersionNumber != want {
			t.Errorf("expected version number %d, got %d", want, version.VersionNumber)
		}
		if version.RenderStatus != model.StatusPending {
			t.Errorf("expected PENDING, got %s", version.RenderStatus)
		}
	}
}

func TestVersion_CreateMissingProject(t *testing.T) {
	r := newTestRepos()
	_, err := r.Versions.Create(context.Background(), "org", "missing", "img", "")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestVersion_RenderLifecycle(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()
	orgID, projectID := seedProject(t, r)
	image, _ := r.Images.Create(ctx, orgID, projectID, "front.jpg", "")
	version, _ := r.Versions.Create(ctx, orgID, projectID, image.ID, "warm brick")

	if err := r.Versions.MarkRendering(ctx, image.ID, version.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	err := r.Versions.MarkRendering(ctx, image.ID, version.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected Conflict on double mark, got %v", err)
	}

	if err := r.Versions.CompleteRender(ctx, image.ID, version.ID, "s3://render.png"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	got, _ := r.Versions.Get(ctx, image.ID, version.ID)
	if got.RenderStatus != model.StatusDone || got.RenderURL != "s3://render.png" {
		t.Errorf("unexpected version after complete: %+v", got)
	}
	if got.Name != "warm brick" {
		t.Errorf("expected name preserved, got %q", got.Name)
	}
}
