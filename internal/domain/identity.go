package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the author identity stamped on everything an iteration
// produces. Derived from role, iteration counter, per-process session
// token and host so that concurrent supervisors never collide.
type Identity struct {
	AuthorEmail  string
	AuthorName   string
	Iteration    int
	Role         Role
	SessionToken string
}

// NewIdentity derives the identity for one iteration. The session token
// is generated once per supervisor process; the iteration counter makes
// consecutive identities distinct within a session.
func NewIdentity(cfg RoleConfig, iteration int, sessionToken, host string) Identity {
	short := sessionToken
	if len(short) > 8 {
		short = short[:8]
	}
	if host == "" {
		host = "localhost"
	}
	return Identity{
		AuthorEmail:  fmt.Sprintf("%s+%s+i%d@%s.dtool.local", cfg.Role, short, iteration, host),
		AuthorName:   cfg.AuthorIdentity(),
		Iteration:    iteration,
		Role:         cfg.Role,
		SessionToken: sessionToken,
	}
}

// AuthorIdentity returns the change record author name this role signs
// with. The suffix distinguishes supervisor-driven records from human
// ones in shared history.
func (c RoleConfig) AuthorIdentity() string {
	return c.AuthorName + " (dtool)"
}

// IsSupervisorAuthor reports whether an author name was produced by any
// supervisor role
func IsSupervisorAuthor(author string) bool {
	return strings.HasSuffix(author, " (dtool)")
}

// Env returns the environment bindings passed to the spawned assistant
func (i Identity) Env() []string {
	return []string{
		"GIT_AUTHOR_NAME=" + i.AuthorName,
		"GIT_AUTHOR_EMAIL=" + i.AuthorEmail,
		"GIT_COMMITTER_NAME=" + i.AuthorName,
		"GIT_COMMITTER_EMAIL=" + i.AuthorEmail,
		"DTOOL_ROLE=" + string(i.Role),
		"DTOOL_ITERATION=" + strconv.Itoa(i.Iteration),
		"DTOOL_SESSION=" + i.SessionToken,
	}
}
