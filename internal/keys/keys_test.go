package keys

import "testing"

func TestProjectKeys(t *testing.T) {
	if got := ProjectPK("org-1"); got != "ORG#org-1" {
		t.Errorf("expected ORG#org-1, got %s", got)
	}
	if got := ProjectSK("proj-1"); got != "PROJ#proj-1" {
		t.Errorf("expected PROJ#proj-1, got %s", got)
	}
}

func TestProjectNameSK_Lowercases(t *testing.T) {
	if got := ProjectNameSK("Main Street Tower"); got != "NAME#main street tower" {
		t.Errorf("expected NAME#main street tower, got %s", got)
	}
}

func TestProjectClientSK_Lowercases(t *testing.T) {
	if got := ProjectClientSK("ACME Corp"); got != "CLIENT#acme corp" {
		t.Errorf("expected CLIENT#acme corp, got %s", got)
	}
}

func TestJobKeys_OwnerShaped(t *testing.T) {
	// Segmentation jobs file under the image partition, render jobs under
	// the version partition. Same sort key shape for both.
	if got := ImagePK("img-1"); got != "IMG#img-1" {
		t.Errorf("expected IMG#img-1, got %s", got)
	}
	if got := VersionPK("ver-1"); got != "VER#ver-1" {
		t.Errorf("expected VER#ver-1, got %s", got)
	}
	if got := JobSK("seg-abc"); got != "JOB#seg-abc" {
		t.Errorf("expected JOB#seg-abc, got %s", got)
	}
}

func TestShareTokenPK(t *testing.T) {
	if got := ShareTokenPK("tok123"); got != "SHARE#tok123" {
		t.Errorf("expected SHARE#tok123, got %s", got)
	}
}

func TestStripPrefix(t *testing.T) {
	if got := StripPrefix("IMG#img-1", ImagePrefix); got != "img-1" {
		t.Errorf("expected img-1, got %s", got)
	}
}

func TestStripPrefix_MismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on mismatched prefix")
		}
	}()
	StripPrefix("IMG#img-1", VersionPrefix)
}
