package validation

import "regexp"

// Email rules (permissive on purpose, Auth0 already validated at signup):
// - One "@", non-empty local part, dot somewhere in the domain.
// - Lowercase is NOT required here; callers lowercase before searching.
// Excludes whitespace explicitly.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail returns true if the value looks like a deliverable address.
func ValidEmail(v string) bool {
	return v != "" && len(v) <= 254 && emailRe.MatchString(v)
}

// SQL identifier rules for sqlgen (table/column names):
// - Start with [a-z_], then [a-z0-9_], length 1..63 (Postgres limit).
// - Lowercase only; quoted/mixed-case identifiers are not supported.
var sqlIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidSQLIdent returns true if the name is safe to interpolate into
// generated SQL text without quoting.
func ValidSQLIdent(name string) bool {
	return sqlIdentRe.MatchString(name)
}
