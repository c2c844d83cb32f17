package roledoc

import (
	"fmt"
	"regexp"

	"github.com/joweeba/dTOOL/internal/domain"
)

var markerPattern = regexp.MustCompile(`<!--\s*INJECT:([A-Za-z0-9_]+)\s*-->`)

// Markers returns the marker names referenced by a template, in order of
// first appearance.
func Markers(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range markerPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Inject replaces every marker in the template with its context entry,
// verbatim. A marker without a context entry is a configuration error:
// the template references a provider that does not exist. Assembling
// twice with the same inputs yields identical output.
func Inject(template string, context map[string]string) (string, error) {
	for _, name := range Markers(template) {
		if _, ok := context[name]; !ok {
			return "", fmt.Errorf("template marker %q has no context provider: %w", name, domain.ErrConfig)
		}
	}
	return markerPattern.ReplaceAllStringFunc(template, func(marker string) string {
		name := markerPattern.FindStringSubmatch(marker)[1]
		return context[name]
	}), nil
}
