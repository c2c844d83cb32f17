// Package harness provides utilities for integration testing the dtool CLI:
// compiling the binary once, isolating each test's environment, and running
// commands against it.
//
// Environment variables managed:
//   - DTOOL_HOME: Isolated per test (temp directory)
//   - DTOOL_REPO: Points at a per-test git repository
//   - DTOOL_DEBUG: Disabled to reduce noise
package harness
