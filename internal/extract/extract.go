// Package extract pulls a JSON document out of free-form model output.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/planward/planward/internal/plan"
)

var (
	fenceRE  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]+)?\\s*(.*?)```")
	objectRE = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRE  = regexp.MustCompile(`(?s)\[.*\]`)
)

// JSON extracts the JSON payload from raw model text. Fenced code blocks are
// unwrapped first; a response that already starts with an object or array is
// returned as-is after a quote-parity sanity check. Otherwise the widest
// brace- or bracket-delimited span is taken, whichever starts first. Returns
// plan.ExtractionError when no candidate is found.
func JSON(raw string) (string, error) {
	s := raw
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		if strings.Count(s, `"`)%2 != 0 {
			slog.Warn("extracted JSON has unbalanced quotes", "length", len(s))
		}
		return s, nil
	}

	obj := objectRE.FindStringIndex(s)
	arr := arrayRE.FindStringIndex(s)
	switch {
	case obj != nil && (arr == nil || obj[0] <= arr[0]):
		return s[obj[0]:obj[1]], nil
	case arr != nil:
		return s[arr[0]:arr[1]], nil
	}
	return "", &plan.ExtractionError{RawLen: len(raw)}
}
