package repo

import (
	"context"
	"testing"

	"github.com/facadelab/restyle/internal/apperr"
)

func TestProject_RoundTrip(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, err := r.Organizations.Create(ctx, "Facade Labs", 0)
	if err != nil {
		t.Fatalf("create org failed: %v", err)
	}

	project, err := r.Projects.Create(ctx, org.ID, "Main Street Tower", "ACME Corp", "1 Main St")
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	got, err := r.Projects.Get(ctx, org.ID, project.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected project, got nil")
	}
	if got.Name != "Main Street Tower" || got.ClientName != "ACME Corp" || got.Address != "1 Main St" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.OrgID != org.ID || got.ID != project.ID {
		t.Errorf("key-derived fields not restored: %+v", got)
	}
}

func TestProject_CreateBumpsOrgCounter(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	if _, err := r.Projects.Create(ctx, org.ID, "One", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.Projects.Create(ctx, org.ID, "Two", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, _ := r.Organizations.Get(ctx, org.ID)
	if got.ProjectCount != 2 {
		t.Errorf("expected projectCount 2, got %d", got.ProjectCount)
	}
}

func TestProject_QuotaConflict(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Small Org", 1)
	if _, err := r.Projects.Create(ctx, org.ID, "First", "", ""); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := r.Projects.Create(ctx, org.ID, "Second", "", "")
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected Conflict when quota exceeded, got %v", err)
	}
}

func TestProject_CreateMissingOrg(t *testing.T) {
	r := newTestRepos()
	_, err := r.Projects.Create(context.Background(), "no-such-org", "P", "", "")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestProject_SearchByName_PrefixOnly(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	if _, err := r.Projects.Create(ctx, org.ID, "abc-tower", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.Projects.Create(ctx, org.ID, "xyz-plaza", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, _, err := r.Projects.SearchByName(ctx, org.ID, "abc", 0, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}
	if found[0].Name != "abc-tower" {
		t.Errorf("expected abc-tower, got %s", found[0].Name)
	}
}

func TestProject_SearchByName_CaseInsensitive(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	if _, err := r.Projects.Create(ctx, org.ID, "Main Street Tower", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, _, err := r.Projects.SearchByName(ctx, org.ID, "MAIN", 0, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected 1 match for MAIN, got %d", len(found))
	}
}

func TestProject_SearchByClient(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	if _, err := r.Projects.Create(ctx, org.ID, "Tower", "ACME Corp", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// No client name: no GSI4 row, must not appear in client search.
	if _, err := r.Projects.Create(ctx, org.ID, "Plaza", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, _, err := r.Projects.SearchByClient(ctx, org.ID, "acme", 0, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}
	if found[0].Name != "Tower" {
		t.Errorf("expected Tower, got %s", found[0].Name)
	}
}

func TestProject_UpdatePatch(t *testing.T) {
	r := newTestRepos()
	ctx := context.Background()

	org, _ := r.Organizations.Create(ctx, "Facade Labs", 0)
	project, _ := r.Projects.Create(ctx, org.ID, "Old Name", "Old Client", "Addr")

	newName := "New Name"
	updated, err := r.Projects.Update(ctx, org.ID, project.ID, ProjectPatch{Name: &newName})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "New Name" {
		t.Errorf("expected New Name, got %s", updated.Name)
	}
	if updated.ClientName != "Old Client" {
		t.Errorf("unpatched field changed: %s", updated.ClientName)
	}

	// The name index follows the rename.
	found, _, err := r.Projects.SearchByName(ctx, org.ID, "new", 0, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected renamed project in search, got %d matches", len(found))
	}
}

func TestProject_UpdateAbsent(t *testing.T) {
	r := newTestRepos()
	name := "x"
	_, err := r.Projects.Update(context.Background(), "org", "missing", ProjectPatch{Name: &name})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
