package services

import (
	"context"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/ports"
)

// fakeChangeLog is an in-memory ports.GitRepository for service tests
type fakeChangeLog struct {
	byAuthor    map[string][]domain.Commit
	commitCount int
	countErr    error
	err         error
	hooksDir    string
	hooksErr    error
	recent      []domain.Commit
	since       []domain.Commit
}

var _ ports.GitRepository = (*fakeChangeLog)(nil)

func (f *fakeChangeLog) RecentCommits(_ context.Context, n int) ([]domain.Commit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.recent) {
		n = len(f.recent)
	}
	return f.recent[:n], nil
}

func (f *fakeChangeLog) CommitsByAuthor(_ context.Context, authorPattern string, n int) ([]domain.Commit, error) {
	if f.err != nil {
		return nil, f.err
	}
	commits := f.byAuthor[authorPattern]
	if n > len(commits) {
		n = len(commits)
	}
	return commits[:n], nil
}

func (f *fakeChangeLog) CommitsSince(_ context.Context, _ time.Time, n int) ([]domain.Commit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.since) {
		n = len(f.since)
	}
	return f.since[:n], nil
}

func (f *fakeChangeLog) CountCommitsSince(_ context.Context, _ time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.commitCount, nil
}

func (f *fakeChangeLog) HooksDir(_ context.Context) (string, error) {
	if f.hooksErr != nil {
		return "", f.hooksErr
	}
	return f.hooksDir, nil
}

type fakeIssueLister struct {
	err    error
	issues []domain.Issue
}

var _ ports.IssueLister = (*fakeIssueLister)(nil)

func (f *fakeIssueLister) OpenIssues(_ context.Context, limit int) ([]domain.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.issues) {
		limit = len(f.issues)
	}
	return f.issues[:limit], nil
}

type fakeStore struct {
	closed    int
	countErr  error
	failed    int
	recordErr error
	records   []domain.IterationRecord
	total     int
}

var _ ports.IterationStore = (*fakeStore)(nil)

func (f *fakeStore) Record(_ context.Context, rec domain.IterationRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) CountSince(_ context.Context, _ domain.Role, _ time.Time) (int, int, error) {
	if f.countErr != nil {
		return 0, 0, f.countErr
	}
	return f.total, f.failed, nil
}

func (f *fakeStore) Close() error {
	f.closed++
	return nil
}

type fakeInspector struct {
	alive map[int]bool
}

var _ ports.ProcessInspector = (*fakeInspector)(nil)

func (f *fakeInspector) Alive(pid int) bool {
	return f.alive[pid]
}

// fakeRunner records every session spec and replays canned results
type fakeRunner struct {
	available map[string]bool
	results   []domain.SessionResult
	specs     []ports.SessionSpec
}

var _ ports.SessionRunner = (*fakeRunner)(nil)

func (f *fakeRunner) Available(assistant string) bool {
	return f.available[assistant]
}

func (f *fakeRunner) Run(_ context.Context, spec ports.SessionSpec) (domain.SessionResult, error) {
	f.specs = append(f.specs, spec)
	idx := len(f.specs) - 1
	if idx < len(f.results) {
		result := f.results[idx]
		result.Assistant = spec.Assistant
		return result, nil
	}
	return domain.SessionResult{Assistant: spec.Assistant, Outcome: domain.OutcomeCompleted}, nil
}
