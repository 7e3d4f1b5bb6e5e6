package browserapi

import (
	"strconv"
	"time"
)

// coerceCell renders one query result cell per spec.md §6's sql_query
// coercion rule: dates become "YYYY-MM-DD" strings; a numeric-looking
// string becomes a JSON number only when the round trip through
// strconv.ParseFloat/FormatFloat is exact, otherwise it is left as a
// string so no precision is silently lost (e.g. a NUMERIC column pgx
// decoded with more digits than float64 can carry).
func coerceCell(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case string:
		if f, ok := exactFloat(t); ok {
			return f
		}

		return t
	default:
		return t
	}
}

func exactFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	if strconv.FormatFloat(f, 'f', -1, 64) != s {
		return 0, false
	}

	return f, true
}
