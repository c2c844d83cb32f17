package services

import (
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
)

// IdentityService mints per-iteration author identities. The session
// token is generated once at construction so every iteration of one
// supervisor process shares it, while two supervisors running the same
// role on different machines never collide.
type IdentityService struct {
	host         string
	sessionToken string
}

// NewIdentityService creates an IdentityService with a fresh session token
func NewIdentityService() *IdentityService {
	host, err := os.Hostname()
	if err != nil || host == "" {
		logging.Logger.Warn("Hostname unavailable, using localhost", "error", err)
		host = "localhost"
	}
	return &IdentityService{
		host:         sanitizeHost(host),
		sessionToken: uuid.NewString(),
	}
}

// SessionToken returns the token shared by every iteration of this process
func (s *IdentityService) SessionToken() string {
	return s.sessionToken
}

// ForIteration derives the author identity stamped on one iteration
func (s *IdentityService) ForIteration(cfg domain.RoleConfig, iteration int) domain.Identity {
	return domain.NewIdentity(cfg, iteration, s.sessionToken, s.host)
}

// sanitizeHost keeps only characters valid in the domain part of the
// derived author email
func sanitizeHost(host string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(host) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "localhost"
	}
	return b.String()
}
