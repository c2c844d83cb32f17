package cmd

import (
	"context"
	"fmt"
	"os"
)

// CommitMsgCmd is the git commit-msg hook entry point. Invoked by the
// installed hook script, never directly by operators.
type CommitMsgCmd struct {
	File string `arg:"" help:"Path to the commit message file"`
}

// Run rewrites the message in place; warnings go to stderr and never
// block the commit
func (c *CommitMsgCmd) Run(cli *CLI) error {
	warnings, err := cli.Container.Hooks.RewriteCommitMessage(context.Background(), c.File)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return nil
}

// PreCommitCmd is the git pre-commit hook entry point
type PreCommitCmd struct{}

// Run executes the configured checks; any failure rejects the commit
func (p *PreCommitCmd) Run(cli *CLI) error {
	return cli.Container.Hooks.RunPreCommitChecks(context.Background())
}
