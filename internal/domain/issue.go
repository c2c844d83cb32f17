package domain

import (
	"fmt"
	"time"
)

// Issue states as seen by the sampler
const (
	IssueInProgress = "in-progress"
	IssueOpen       = "open"
)

// Issue is a lightweight projection of one tracker item, snapshotted
// once per iteration
type Issue struct {
	CreatedAt time.Time
	Number    int
	Priority  int // tier, 0 is highest
	State     string
	Title     string
	UpdatedAt time.Time
}

// AgeDays returns the whole days since the issue was created
func (i Issue) AgeDays(now time.Time) int {
	d := int(now.Sub(i.CreatedAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// PromptLine renders the issue the way it appears in assembled prompts
func (i Issue) PromptLine(now time.Time) string {
	return fmt.Sprintf("#%d [P%d] (%s, %dd) %s", i.Number, i.Priority, i.State, i.AgeDays(now), i.Title)
}

// Commit is one change record from the version control collaborator
type Commit struct {
	Author  string
	Body    string
	Hash    string
	Subject string
}
