package browserapi

import (
	"strings"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// computeSubjectOptions implements spec.md §4.H's Addsubject rule: collect
// the comma-joined option list from every device's ess/animalOptions
// entry, dedupe case-insensitively, strip empties, ensure "test" is
// present as the first element, and append newSubject if its lowercase
// form is absent.
func computeSubjectOptions(addresses []string, lookup StatusLookup, newSubject string) string {
	seen := make(map[string]bool)
	var ordered []string

	add := func(opt string) {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return
		}

		lower := strings.ToLower(opt)
		if seen[lower] {
			return
		}

		seen[lower] = true
		ordered = append(ordered, opt)
	}

	for _, addr := range addresses {
		entry, ok := lookup.Get(models.StatusKey{Host: addr, Source: "ess", Type: "animalOptions"})
		if !ok {
			continue
		}

		for _, opt := range strings.Split(entry.Value, ",") {
			add(opt)
		}
	}

	filtered := ordered[:0]
	for _, opt := range ordered {
		if strings.ToLower(opt) != "test" {
			filtered = append(filtered, opt)
		}
	}

	result := append([]string{"test"}, filtered...)
	seen["test"] = true

	if trimmed := strings.TrimSpace(newSubject); trimmed != "" && !seen[strings.ToLower(trimmed)] {
		result = append(result, trimmed)
	}

	return strings.Join(result, ",")
}
