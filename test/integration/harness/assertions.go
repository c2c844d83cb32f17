package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dump renders a command result for assertion failure messages
func dump(result CommandResult) string {
	return fmt.Sprintf("exit=%d\n--- stdout ---\n%s\n--- stderr ---\n%s",
		result.ExitCode, result.Stdout, result.Stderr)
}

// AssertSuccess fails the test unless the command exited 0.
func AssertSuccess(tb testing.TB, result CommandResult) {
	tb.Helper()
	assert.Equal(tb, 0, result.ExitCode, "expected exit 0\n%s", dump(result))
}

// AssertFailure fails the test if the command exited 0.
func AssertFailure(tb testing.TB, result CommandResult) {
	tb.Helper()
	assert.NotEqual(tb, 0, result.ExitCode, "expected non-zero exit\n%s", dump(result))
}

// AssertExitCode fails the test unless the command exited with expected.
func AssertExitCode(tb testing.TB, result CommandResult, expected int) {
	tb.Helper()
	assert.Equal(tb, expected, result.ExitCode, "expected exit %d\n%s", expected, dump(result))
}

// AssertStdoutContains fails the test unless stdout contains expected.
func AssertStdoutContains(tb testing.TB, result CommandResult, expected string) {
	tb.Helper()
	assert.Contains(tb, result.Stdout, expected, "stdout missing %q\n%s", expected, dump(result))
}

// AssertStdoutNotContains fails the test if stdout contains unexpected.
func AssertStdoutNotContains(tb testing.TB, result CommandResult, unexpected string) {
	tb.Helper()
	assert.NotContains(tb, result.Stdout, unexpected, "stdout should not contain %q\n%s", unexpected, dump(result))
}

// AssertStderrContains fails the test unless stderr contains expected.
func AssertStderrContains(tb testing.TB, result CommandResult, expected string) {
	tb.Helper()
	assert.Contains(tb, result.Stderr, expected, "stderr missing %q\n%s", expected, dump(result))
}

// AssertStdoutEmpty fails the test unless stdout is blank.
func AssertStdoutEmpty(tb testing.TB, result CommandResult) {
	tb.Helper()
	assert.Empty(tb, strings.TrimSpace(result.Stdout), "expected empty stdout\n%s", dump(result))
}

// AssertValidJSON decodes stdout into target, failing the test on invalid JSON.
func AssertValidJSON(tb testing.TB, result CommandResult, target any) {
	tb.Helper()
	err := json.Unmarshal([]byte(result.Stdout), target)
	require.NoError(tb, err, "expected valid JSON on stdout\n%s", dump(result))
}

// AssertJSONContains decodes stdout as a JSON object and checks one key's value.
func AssertJSONContains(tb testing.TB, result CommandResult, key string, expected any) {
	tb.Helper()
	var data map[string]any
	AssertValidJSON(tb, result, &data)
	assert.Equal(tb, expected, data[key], "JSON key %q mismatch\n%s", key, dump(result))
}

// AssertFileExists verifies a state file was created.
func AssertFileExists(tb testing.TB, path string) {
	tb.Helper()
	_, err := os.Stat(path)
	assert.NoError(tb, err, "expected file to exist: %s", path)
}

// AssertFileMissing verifies a state file is absent.
func AssertFileMissing(tb testing.TB, path string) {
	tb.Helper()
	_, err := os.Stat(path)
	assert.True(tb, os.IsNotExist(err), "expected file to be absent: %s", path)
}

// AssertFileContains verifies a state file exists and contains the expected string.
func AssertFileContains(tb testing.TB, path, expected string) {
	tb.Helper()
	data, err := os.ReadFile(path)
	require.NoError(tb, err, "expected readable file: %s", path)
	assert.Contains(tb, string(data), expected, "file %s missing %q", path, expected)
}
