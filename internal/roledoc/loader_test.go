package roledoc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joweeba/dTOOL/internal/domain"
)

func writeRoleDocs(t *testing.T, shared, role string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.md"), []byte(shared), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.md"), []byte(role), 0o644))
	return dir
}

func TestLoad_MergesSharedAndRole(t *testing.T) {
	dir := writeRoleDocs(t,
		"---\nerror_delay: 30\n---\nShared instructions.\n",
		"---\nrestart_delay: 120\n---\nWorker instructions.\n")

	cfg, template, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ErrorDelay)
	assert.Equal(t, 120*time.Second, cfg.RestartDelay)
	assert.Equal(t, "Shared instructions.\n\nWorker instructions.\n", template)
}

func TestLoad_RoleOverridesShared(t *testing.T) {
	dir := writeRoleDocs(t,
		"---\niteration_timeout: 1800\nauthor_name: SHARED\n---\nshared\n",
		"---\niteration_timeout: 600\n---\nworker\n")

	cfg, _, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, 600*time.Second, cfg.IterationTimeout)
	assert.Equal(t, "SHARED", cfg.AuthorName)
}

func TestLoad_DefaultsWhenDocsAreBare(t *testing.T) {
	dir := writeRoleDocs(t, "shared body\n", "worker body\n")

	cfg, template, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig(domain.RoleWorker), cfg)
	assert.Equal(t, "shared body\n\nworker body\n", template)
}

func TestLoad_MissingRoleDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.md"), []byte("shared\n"), 0o644))

	_, _, err := Load(dir, domain.RoleWorker)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoad_MissingSharedDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.md"), []byte("worker\n"), 0o644))

	_, _, err := Load(dir, domain.RoleWorker)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoad_RotationTypeFallsBackToBuiltinPhases(t *testing.T) {
	dir := writeRoleDocs(t, "shared\n", "---\nrotation_type: audit\n---\nworker\n")

	cfg, _, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, "audit", cfg.RotationType)
	assert.Equal(t, domain.DefaultRotationPhases("audit"), cfg.RotationPhases)
}

func TestLoad_ExplicitPhasesWin(t *testing.T) {
	dir := writeRoleDocs(t, "shared\n",
		"---\nrotation_type: audit\nrotation_phases: locking, error-paths\n---\nworker\n")

	cfg, _, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, []string{"locking", "error-paths"}, cfg.RotationPhases)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := writeRoleDocs(t, "shared\n", "---\nrestart_delay: -5\n---\nworker\n")

	_, _, err := Load(dir, domain.RoleWorker)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoad_MalformedFrontmatterRejected(t *testing.T) {
	dir := writeRoleDocs(t, "---\nunclosed fence", "worker\n")

	_, _, err := Load(dir, domain.RoleWorker)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoad_EmptySharedBody(t *testing.T) {
	dir := writeRoleDocs(t, "---\nerror_delay: 5\n---\n", "worker only\n")

	cfg, template, err := Load(dir, domain.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ErrorDelay)
	assert.Equal(t, "worker only\n", template)
}
