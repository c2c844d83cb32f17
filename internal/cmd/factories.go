package cmd

import (
	adapterassistant "github.com/joweeba/dTOOL/internal/adapters/assistant"
	adaptergit "github.com/joweeba/dTOOL/internal/adapters/git"
	adapterprocess "github.com/joweeba/dTOOL/internal/adapters/process"
	adapterstorage "github.com/joweeba/dTOOL/internal/adapters/storage"
	adaptertracker "github.com/joweeba/dTOOL/internal/adapters/tracker"
	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/ports"
	"github.com/joweeba/dTOOL/internal/services"
)

// Container carries the shared adapters and services commands pull from
type Container struct {
	Git       ports.GitRepository
	Hooks     *services.HookService
	Inspector ports.ProcessInspector
	Issues    ports.IssueLister
	Runner    ports.SessionRunner
	Settings  *config.Settings

	// Internal - opened on demand, for cleanup only
	store *adapterstorage.SQLiteRepository
}

// NewContainer wires adapters to settings; the store stays closed until asked for
func NewContainer(settings *config.Settings) (*Container, error) {
	git := adaptergit.NewCLIRepository(settings.RepoPath)
	return &Container{
		Git:       git,
		Hooks:     services.NewHookService(git, settings),
		Inspector: adapterprocess.NewOSProcessInspector(),
		Issues:    adaptertracker.NewCLIClient(settings.RepoPath),
		Runner:    adapterassistant.NewCLIRunner(settings.RepoPath, settings.KillGrace),
		Settings:  settings,
	}, nil
}

// OpenStore opens the iteration history store once and memoizes it.
// Hook entry points never call this, so committing stays cheap.
func (c *Container) OpenStore() (ports.IterationStore, error) {
	if c.store != nil {
		return c.store, nil
	}
	store, err := adapterstorage.NewSQLiteRepository(c.Settings.DBPath())
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

// Close releases the iteration store's database handle
func (c *Container) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
