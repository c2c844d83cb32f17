package domain

import (
	"strconv"
	"strings"
)

// ParseIterationTag extracts the role tag and iteration counter from a
// change record subject like "[W]12: add retry". ok is false when the
// subject carries no known role tag prefix.
func ParseIterationTag(subject string) (Role, int, bool) {
	subject = strings.TrimSpace(subject)
	for _, role := range Roles() {
		tag := role.Tag()
		if !strings.HasPrefix(subject, tag) {
			continue
		}
		rest := subject[len(tag):]
		colon := strings.Index(rest, ":")
		if colon <= 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[:colon]))
		if err != nil || n < 0 {
			continue
		}
		return role, n, true
	}
	return "", 0, false
}

// HasIterationTag reports whether a subject already carries any role tag
func HasIterationTag(subject string) bool {
	_, _, ok := ParseIterationTag(subject)
	return ok
}

// NextIteration scans change record subjects for the highest iteration
// recorded under the role's tag and returns the next counter value.
// With no history (or unreadable history) the counter starts at 1.
func NextIteration(subjects []string, role Role) int {
	highest := 0
	for _, s := range subjects {
		r, n, ok := ParseIterationTag(s)
		if ok && r == role && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Section extracts the text under a "## <heading>" line in a change
// record body, up to the next second-level heading or the end of the
// body. Returns "" when the heading is absent.
func Section(body, heading string) string {
	want := "## " + heading
	var collected []string
	inSection := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			if inSection {
				break
			}
			inSection = strings.TrimSpace(line) == want
			continue
		}
		if inSection {
			collected = append(collected, line)
		}
	}
	return strings.TrimSpace(strings.Join(collected, "\n"))
}

// HasSection reports whether a body contains a "## <heading>" line
func HasSection(body, heading string) bool {
	want := "## " + heading
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
