package domain

import (
	"math/rand"
	"sort"
)

// SampleCaps bounds the issue sample assembled for each prompt
type SampleCaps struct {
	InProgress  int // all in-progress items, up to this many
	PerTier     int // top-K taken from each of the two tiers below the highest
	RandomExtra int // random picks appended after the tiered selection
	TopTier     int // all items in the highest-priority tier, up to this many
}

// SampleIssues selects a bounded, priority-biased subset of the open
// issues for prompt injection. Selection order: every in-progress item,
// then the whole highest-priority tier, then the top items of the next
// two tiers, then a random sample plus the single oldest and single
// newest of whatever remains. Every stage respects its cap and items are
// never selected twice.
func SampleIssues(issues []Issue, caps SampleCaps, rng *rand.Rand) []Issue {
	if len(issues) == 0 {
		return nil
	}

	selected := make([]Issue, 0, caps.InProgress+caps.TopTier+2*caps.PerTier+caps.RandomExtra+2)
	seen := make(map[int]bool, len(issues))
	take := func(batch []Issue, limit int) {
		for _, issue := range batch {
			if limit <= 0 {
				return
			}
			if seen[issue.Number] {
				continue
			}
			seen[issue.Number] = true
			selected = append(selected, issue)
			limit--
		}
	}

	var inProgress, open []Issue
	for _, issue := range issues {
		if issue.State == IssueInProgress {
			inProgress = append(inProgress, issue)
		} else {
			open = append(open, issue)
		}
	}
	sortByPriorityThenRecency(inProgress)
	take(inProgress, caps.InProgress)

	for i, tier := range priorityTiers(open) {
		switch i {
		case 0:
			take(tier, caps.TopTier)
		case 1, 2:
			take(tier, caps.PerTier)
		}
	}

	remaining := func() []Issue {
		var rest []Issue
		for _, issue := range issues {
			if !seen[issue.Number] {
				rest = append(rest, issue)
			}
		}
		return rest
	}

	if rest := remaining(); len(rest) > 0 && caps.RandomExtra > 0 {
		shuffled := append([]Issue(nil), rest...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		take(shuffled, caps.RandomExtra)
	}

	if rest := remaining(); len(rest) > 0 {
		oldest, newest := rest[0], rest[0]
		for _, issue := range rest[1:] {
			if issue.CreatedAt.Before(oldest.CreatedAt) {
				oldest = issue
			}
			if issue.CreatedAt.After(newest.CreatedAt) {
				newest = issue
			}
		}
		take([]Issue{oldest, newest}, 2)
	}

	return selected
}

// priorityTiers groups issues by priority, highest tier (lowest value)
// first, each tier ordered by recency
func priorityTiers(issues []Issue) [][]Issue {
	byPriority := make(map[int][]Issue)
	var priorities []int
	for _, issue := range issues {
		if _, ok := byPriority[issue.Priority]; !ok {
			priorities = append(priorities, issue.Priority)
		}
		byPriority[issue.Priority] = append(byPriority[issue.Priority], issue)
	}
	sort.Ints(priorities)

	tiers := make([][]Issue, 0, len(priorities))
	for _, p := range priorities {
		tier := byPriority[p]
		sort.SliceStable(tier, func(i, j int) bool {
			return tier[i].UpdatedAt.After(tier[j].UpdatedAt)
		})
		tiers = append(tiers, tier)
	}
	return tiers
}

func sortByPriorityThenRecency(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Priority != issues[j].Priority {
			return issues[i].Priority < issues[j].Priority
		}
		return issues[i].UpdatedAt.After(issues[j].UpdatedAt)
	})
}
