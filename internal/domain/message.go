package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var issueRefPattern = regexp.MustCompile(`(Fixes|Part of|Re:) #\d+`)

// AnnotateMessage rewrites a change record message the way the role's
// conventions require: iteration tag prefix on the subject, a trailer
// block, and advisory warnings about missing structure. Merge records
// and already-tagged messages pass through untouched (changed=false).
func AnnotateMessage(msg string, role Role, iteration int, now time.Time) (annotated string, warnings []string, changed bool) {
	subject, rest, hasRest := strings.Cut(msg, "\n")
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(subject, "Merge ") || HasIterationTag(subject) {
		return msg, nil, false
	}

	warnings = structureWarnings(msg, subject, role)

	out := fmt.Sprintf("%s%d: %s", role.Tag(), iteration, subject)
	if hasRest {
		out += "\n" + rest
	}
	out = appendTrailers(out, subject, role, iteration, now)
	return out, warnings, true
}

func structureWarnings(msg, subject string, role Role) []string {
	var warnings []string
	if !HasSection(msg, "Changes") {
		warnings = append(warnings, "Missing '## Changes' section")
	}
	if !HasSection(msg, "Next") {
		warnings = append(warnings, "Missing '## Next' section")
	}
	exempt := role == RoleManager || strings.Contains(subject, "[maintain]")
	if !exempt && !issueRefPattern.MatchString(msg) {
		warnings = append(warnings, "No issue link found (Fixes #N, Part of #N, or Re: #N)")
	}
	return warnings
}

// appendTrailers adds the Type/Role/Iteration/Timestamp trailer block,
// skipping any trailer the message already carries
func appendTrailers(msg, subject string, role Role, iteration int, now time.Time) string {
	var trailers []string
	if t := recordType(subject); t != "" && !hasTrailer(msg, "Type:") {
		trailers = append(trailers, "Type: "+t)
	}
	if !hasTrailer(msg, "Role:") {
		trailers = append(trailers, "Role: "+role.Author())
	}
	if !hasTrailer(msg, "Iteration:") {
		trailers = append(trailers, fmt.Sprintf("Iteration: %d", iteration))
	}
	if !hasTrailer(msg, "Timestamp:") {
		trailers = append(trailers, "Timestamp: "+now.Format(time.RFC3339))
	}
	if len(trailers) == 0 {
		return msg
	}
	return strings.TrimRight(msg, "\n") + "\n\n" + strings.Join(trailers, "\n") + "\n"
}

func hasTrailer(msg, key string) bool {
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), key) {
			return true
		}
	}
	return false
}

// recordType derives the change type from subject keywords. Returns ""
// when no keyword matches.
func recordType(subject string) string {
	lower := strings.ToLower(subject)
	switch {
	case strings.Contains(lower, "[maintain]"):
		return "maintain"
	case strings.Contains(lower, "fix"):
		return "fix"
	case strings.Contains(lower, "add"):
		return "feat"
	case strings.Contains(lower, "refactor"):
		return "refactor"
	case strings.Contains(lower, "doc"):
		return "docs"
	case strings.Contains(lower, "audit"):
		return "audit"
	}
	return ""
}

// HasIssueRef reports whether a message references a tracker item
func HasIssueRef(msg string) bool {
	return issueRefPattern.MatchString(msg)
}
