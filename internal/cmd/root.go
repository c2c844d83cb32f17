package cmd

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/logging"
)

// CLI is the root kong command tree. The hidden commands are hook entry
// points invoked by git, never by operators.
type CLI struct {
	Version     kong.VersionFlag `help:"Print version and exit"`
	Debug       bool             `help:"Write debug logs to a file" short:"d"`
	DebugFile   string           `help:"Debug log path (skips rotation of the default log directory)"`
	MaxLogFiles int              `help:"Log files kept in the default log directory (0 = unlimited)" default:"1000"`

	Run       RunCmd       `cmd:"" help:"Run the supervisor loop for one role (default)" default:"withargs"`
	Health    HealthCmd    `cmd:"" help:"Analyze a role's crash history and print a health report"`
	Status    StatusCmd    `cmd:"" help:"Show the live status of every role"`
	Hint      HintCmd      `cmd:"" help:"Leave an instruction for a role's next iteration"`
	Stop      StopCmd      `cmd:"" help:"Ask a running supervisor to stop after its current iteration"`
	CommitMsg CommitMsgCmd `cmd:"commit-msg" help:"Git commit-msg hook entry point" hidden:""`
	PreCommit PreCommitCmd `cmd:"pre-commit" help:"Git pre-commit hook entry point" hidden:""`

	// populated after parsing, invisible to kong
	Container *Container       `kong:"-"`
	settings  *config.Settings `kong:"-"`
}

// SetSettings seeds settings loaded before parsing so AfterApply does
// not read the environment a second time.
func (c *CLI) SetSettings(settings *config.Settings) {
	c.settings = settings
}

// AfterApply initializes logging after CLI parsing and wires the
// dependency container
func (c *CLI) AfterApply() error {
	logPath, err := logging.Initialize(c.Debug, c.DebugFile, c.MaxLogFiles)
	if err != nil {
		return err
	}

	// Propagate debug settings so spawned hooks and assistants append to
	// the same log stream
	if c.Debug || c.DebugFile != "" {
		os.Setenv("DTOOL_DEBUG", "1")
		if logPath != "" {
			os.Setenv("DTOOL_DEBUG_FILE", logPath)
		}
	}
	if c.MaxLogFiles != 1000 {
		os.Setenv("DTOOL_MAX_LOG_FILES", fmt.Sprintf("%d", c.MaxLogFiles))
	}

	if c.settings == nil {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		c.settings = settings
	}

	// Command-level path overrides must land before adapters capture them
	if c.Run.Home != "" {
		c.settings.Home = config.ExpandPath(c.Run.Home)
	}
	if c.Run.Repo != "" {
		c.settings.RepoPath = config.ExpandPath(c.Run.Repo)
	}

	container, err := NewContainer(c.settings)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	c.Container = container
	return nil
}

// Close releases everything the container holds open.
func (c *CLI) Close() error {
	if c.Container != nil {
		return c.Container.Close()
	}
	return nil
}
