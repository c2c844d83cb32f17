package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIterationTag_TaggedSubjects(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		role      Role
		iteration int
	}{
		{"worker", "[W]12: add retry", RoleWorker, 12},
		{"manager", "[M]1: audit pass", RoleManager, 1},
		{"researcher", "[R]3: survey tooling", RoleResearcher, 3},
		{"prover", "[P]7: verify invariants", RoleProver, 7},
		{"leading whitespace", "  [W]5: trimmed", RoleWorker, 5},
		{"iteration with spaces", "[W] 9 : padded counter", RoleWorker, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, iteration, ok := ParseIterationTag(tt.subject)
			require.True(t, ok)
			assert.Equal(t, tt.role, role)
			assert.Equal(t, tt.iteration, iteration)
		})
	}
}

func TestParseIterationTag_RejectsUntagged(t *testing.T) {
	tests := []struct {
		name    string
		subject string
	}{
		{"plain subject", "add retry logic"},
		{"unknown tag", "[X]1: mystery role"},
		{"missing counter", "[W]: no number"},
		{"non-numeric counter", "[W]abc: letters"},
		{"negative counter", "[W]-1: negative"},
		{"missing colon", "[W]1 no colon"},
		{"empty", ""},
		{"merge subject", "Merge branch 'main'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := ParseIterationTag(tt.subject)
			assert.False(t, ok)
		})
	}
}

func TestHasIterationTag(t *testing.T) {
	assert.True(t, HasIterationTag("[W]3: tagged"))
	assert.False(t, HasIterationTag("untagged"))
}

func TestNextIteration_EmptyHistory(t *testing.T) {
	assert.Equal(t, 1, NextIteration(nil, RoleWorker))
	assert.Equal(t, 1, NextIteration([]string{}, RoleWorker))
}

func TestNextIteration_ResumesFromHighest(t *testing.T) {
	subjects := []string{
		"[W]41: newest worker",
		"[M]90: manager much further along",
		"[W]39: older worker",
		"untagged commit",
		"[W]broken: malformed",
	}

	assert.Equal(t, 42, NextIteration(subjects, RoleWorker))
	assert.Equal(t, 91, NextIteration(subjects, RoleManager))
	assert.Equal(t, 1, NextIteration(subjects, RoleResearcher))
}

func TestSection_ExtractsHeading(t *testing.T) {
	body := "Intro line\n\n## Changes\n- did a thing\n- did another\n\n## Next\nContinue the refactor\nacross both files\n"

	assert.Equal(t, "- did a thing\n- did another", Section(body, "Changes"))
	assert.Equal(t, "Continue the refactor\nacross both files", Section(body, "Next"))
}

func TestSection_MissingHeading(t *testing.T) {
	assert.Equal(t, "", Section("no headings here", "Next"))
	assert.Equal(t, "", Section("", "Next"))
}

func TestSection_StopsAtNextHeading(t *testing.T) {
	body := "## Next\nfirst section\n## Other\nsecond section"

	got := Section(body, "Next")

	assert.Equal(t, "first section", got)
	assert.NotContains(t, got, "second section")
}

func TestSection_HeadingAtEnd(t *testing.T) {
	assert.Equal(t, "", Section("body text\n## Next\n", "Next"))
	assert.Equal(t, "tail", Section("body text\n## Next\ntail", "Next"))
}

func TestHasSection(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		heading string
		want    bool
	}{
		{"present", "## Changes\n- x", "Changes", true},
		{"absent", "## Changes\n- x", "Next", false},
		{"not a heading", "talking about ## Changes inline", "Changes", false},
		{"indented heading still counts", "  ## Changes", "Changes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSection(tt.body, tt.heading))
		})
	}
}
