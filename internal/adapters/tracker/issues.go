package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

const issueFetchTimeout = 15 * time.Second

// defaultPriority is the tier assigned to issues with no priority label
const defaultPriority = 2

// CLIClient lists tracker issues using the gh CLI
type CLIClient struct {
	repoPath string
}

// Verify interface compliance at compile time
var _ ports.IssueLister = (*CLIClient)(nil)

// NewCLIClient creates a CLIClient running gh inside repoPath
func NewCLIClient(repoPath string) *CLIClient {
	return &CLIClient{repoPath: repoPath}
}

// ghIssue represents the JSON response from gh issue list
type ghIssue struct {
	CreatedAt time.Time `json:"createdAt"`
	Labels    []ghLabel `json:"labels"`
	Number    int       `json:"number"`
	State     string    `json:"state"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ghLabel struct {
	Name string `json:"name"`
}

// OpenIssues fetches open issues via gh CLI.
// A missing gh binary yields (nil, nil) so prompts degrade quietly.
func (c *CLIClient) OpenIssues(ctx context.Context, limit int) ([]domain.Issue, error) {
	logging.Logger.Debug("Fetching open issues", "limit", limit)

	if _, err := exec.LookPath("gh"); err != nil {
		logging.Logger.Debug("gh CLI not found, skipping issue fetch")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, issueFetchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", "issue", "list",
		"--state", "open",
		"--limit", strconv.Itoa(limit),
		"--json", "number,title,labels,state,createdAt,updatedAt")
	cmd.Dir = c.repoPath

	output, err := cmd.Output()
	if err != nil {
		logging.Logger.Debug("gh issue list failed", "error", err)
		return nil, fmt.Errorf("gh issue list failed: %w", err)
	}

	var raw []ghIssue
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gh response: %w", err)
	}

	issues := make([]domain.Issue, 0, len(raw))
	for _, gi := range raw {
		issues = append(issues, domain.Issue{
			CreatedAt: gi.CreatedAt,
			Number:    gi.Number,
			Priority:  priorityFromLabels(gi.Labels),
			State:     stateFromLabels(gi.Labels),
			Title:     gi.Title,
			UpdatedAt: gi.UpdatedAt,
		})
	}

	logging.Logger.Debug("Fetched open issues", "count", len(issues))
	return issues, nil
}

// priorityFromLabels maps labels like "P1", "priority: high" to a tier.
// Unlabeled issues land in the middle of the range.
func priorityFromLabels(labels []ghLabel) int {
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if len(name) == 2 && name[0] == 'p' && name[1] >= '0' && name[1] <= '9' {
			return int(name[1] - '0')
		}
		switch strings.TrimSpace(strings.TrimPrefix(name, "priority:")) {
		case "critical", "urgent":
			return 0
		case "high":
			return 1
		case "medium":
			return 2
		case "low":
			return 3
		}
	}
	return defaultPriority
}

func stateFromLabels(labels []ghLabel) string {
	for _, l := range labels {
		switch strings.ToLower(strings.TrimSpace(l.Name)) {
		case "in-progress", "in progress", "wip":
			return domain.IssueInProgress
		}
	}
	return domain.IssueOpen
}
