package store

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnsafeQuery is returned by ValidateReadOnly when a query fails the
// keyword blacklist. Per spec.md §9's resolution of Open Question 3, this
// is a hard filter against accidental destructive statements from the
// dashboard's ad hoc query box, not a security boundary — it does not
// replace parameterized queries and is not meant to stop an adversarial
// caller.
var ErrUnsafeQuery = errors.New("query failed the read-only safety filter")

var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE",
	"ALTER", "GRANT", "REVOKE", "EXECUTE", "CREATE",
}

var wordBoundary = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(forbiddenKeywords))
	for i, kw := range forbiddenKeywords {
		res[i] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return res
}()

// ValidateReadOnly enforces spec.md §6's SQL read-safety rule: the query
// must start with SELECT or WITH, must not contain any of the forbidden
// keywords as whole words, and must not carry a second statement after a
// semicolon.
func ValidateReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrUnsafeQuery
	}

	if hasTrailingStatement(trimmed) {
		return ErrUnsafeQuery
	}

	for _, re := range wordBoundary {
		if re.MatchString(trimmed) {
			return ErrUnsafeQuery
		}
	}

	return nil
}

// hasTrailingStatement reports whether sql contains a semicolon followed by
// anything other than whitespace, i.e. a second statement.
func hasTrailingStatement(sql string) bool {
	idx := strings.IndexByte(sql, ';')
	if idx < 0 {
		return false
	}

	return strings.TrimSpace(sql[idx+1:]) != ""
}
