package validation

import "testing"

func TestValidEmail(t *testing.T) {
	valid := []string{
		"a@b.co",
		"first.last@example.com",
		"User+tag@Example.ORG",
		"x_y-z@sub.domain.io",
	}
	for _, v := range valid {
		if !ValidEmail(v) {
			t.Errorf("ValidEmail(%q) = false, want true", v)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@missing-local.com",
		"missing-domain@",
		"two@@ats.com",
		"spaces in@local.com",
		"nodot@domain",
	}
	for _, v := range invalid {
		if ValidEmail(v) {
			t.Errorf("ValidEmail(%q) = true, want false", v)
		}
	}
}

func TestValidSQLIdent(t *testing.T) {
	valid := []string{"users", "_internal", "workos_user_id", "t1"}
	for _, v := range valid {
		if !ValidSQLIdent(v) {
			t.Errorf("ValidSQLIdent(%q) = false, want true", v)
		}
	}

	invalid := []string{
		"",
		"1users",
		"Users",
		"drop table",
		"users;--",
		"col\"name",
		"abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijabcdefghijabcd", // 64 chars
	}
	for _, v := range invalid {
		if ValidSQLIdent(v) {
			t.Errorf("ValidSQLIdent(%q) = true, want false", v)
		}
	}
}
