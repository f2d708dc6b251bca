package dupes

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadGroups_GroupsByLowercasedEmail(t *testing.T) {
	path := writeCSV(t, `id,email,auth0_sub,is_super_user,provider
c1,Dup@Example.com,auth0|a,false,google-oauth2
c2,other@example.com,auth0|b,true,
c3,dup@example.com,auth0|c,false,auth0
`)

	groups, err := ReadGroups(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	// el orden de grupos es el de primera aparición
	if groups[0].Email != "dup@example.com" || groups[1].Email != "other@example.com" {
		t.Fatalf("unexpected group order: %q, %q", groups[0].Email, groups[1].Email)
	}
	if len(groups[0].Candidates) != 2 {
		t.Fatalf("expected dup group with 2 candidates, got %d", len(groups[0].Candidates))
	}
	if groups[0].Candidates[0].ID != "c1" || groups[0].Candidates[1].ID != "c3" {
		t.Fatalf("candidate order not preserved: %+v", groups[0].Candidates)
	}
	if !groups[1].Candidates[0].SuperUser {
		t.Fatal("is_super_user not parsed")
	}
	if groups[0].Candidates[0].Provider != "google-oauth2" {
		t.Fatalf("provider not parsed: %+v", groups[0].Candidates[0])
	}
}

func TestReadGroups_MissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, "id,email\nc1,a@b.co\n")
	if _, err := ReadGroups(path); err == nil {
		t.Fatal("expected schema error for missing auth0_sub column")
	}
}

func TestReadGroups_EmptyIDRejected(t *testing.T) {
	path := writeCSV(t, "id,email,auth0_sub\n,a@b.co,auth0|a\n")
	if _, err := ReadGroups(path); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestReadGroups_HeaderCaseInsensitive(t *testing.T) {
	path := writeCSV(t, "ID,Email,Auth0_Sub\nc1,a@b.co,auth0|a\n")
	groups, err := ReadGroups(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Candidates[0].Auth0Sub != "auth0|a" {
		t.Fatalf("unexpected: %+v", groups)
	}
}
