// Package translate maps a homebase datapoint's hierarchical name into the
// canonical (source, type) pair cached by pkg/statuscache.
package translate

import (
	"strconv"
	"strings"
)

// Translate maps name to (source, type) and returns the value transformed
// as the table in spec.md §4.D requires. It is a pure function: no I/O, no
// shared state.
func Translate(name, value string) (source, typ, outValue string) {
	switch {
	case name == "@keys":
		return "system", "@keys", value
	case strings.HasPrefix(name, "ess/git/"):
		return "git", strings.TrimPrefix(name, "ess/git/"), value
	case name == "ess/obs_active" || name == "ess/in_obs":
		return "ess", "in_obs", normalizeInt(value)
	default:
		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			return name[:idx], name[idx+1:], value
		}

		return "system", name, value
	}
}

// normalizeInt parses value as an integer and re-renders it in canonical
// decimal form, falling back to "0" when it does not parse.
func normalizeInt(value string) string {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return "0"
	}

	return strconv.Itoa(n)
}
