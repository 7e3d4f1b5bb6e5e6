package homebase

import (
	"encoding/json"
	"strconv"
	"strings"
)

// pollTargets are the two remote state values re-evaluated every
// pollInterval while Open, per spec.md §4.C.
var pollTargets = []struct {
	script string
	source string
	typ    string
	coerce func(raw string) (string, bool)
}{
	{script: "pump_voltage", source: "system", typ: "24v-v", coerce: coerceNumeric},
	{script: "charging", source: "system", typ: "charging", coerce: coerceBoolish},
}

// runPoll issues one eval per pollTargets entry and, on success, feeds the
// coerced result straight into the status cache as a synthetic datapoint.
// Failures are swallowed per spec.
func (l *Link) runPoll() {
	for _, target := range pollTargets {
		target := target

		go func() {
			result, err := l.Eval(l.ctx, target.script, defaultRequestTimeout(l.cfg))
			if err != nil {
				return
			}

			value, ok := target.coerce(result)
			if !ok {
				return
			}

			entry, changed := l.cache.Apply(l.address, target.source, target.typ, value)
			if !changed {
				return
			}

			if l.recorder != nil {
				_ = l.recorder.RecordStatusChange(l.ctx, entry)
			}

			l.publisher.Publish("status_changes", entry)
		}()
	}
}

// coerceNumeric tolerates a bare number or a JSON-wrapped one and
// re-renders it in canonical decimal form.
func coerceNumeric(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}

	var wrapped string
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(wrapped), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	}

	return "", false
}

// coerceBoolish tolerates "true"/"false", "1"/"0", or a JSON boolean and
// renders the canonical "true"/"false" string.
func coerceBoolish(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)

	switch trimmed {
	case "true", "1":
		return "true", true
	case "false", "0":
		return "false", true
	}

	var wrapped bool
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
		return strconv.FormatBool(wrapped), true
	}

	return "", false
}
