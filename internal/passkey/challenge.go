package passkey

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

type ChallengeKind string

const (
	ChallengeRegistration ChallengeKind = "registration"
	ChallengeLogin        ChallengeKind = "login"
)

// Pending is the single outstanding challenge for one browser session. For
// registration it also carries the candidate user handle and display name
// that become the Credential if the ceremony completes. Session holds the
// go-webauthn session state the verifier checks the response against, so
// the challenge used at finish time is always the server's own copy.
type Pending struct {
	Kind        ChallengeKind
	Challenge   string
	UserHandle  []byte
	DisplayName string
	Session     webauthn.SessionData
	ExpiresAt   time.Time
}

func (p *Pending) expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// ChallengeStore keeps at most one pending challenge per session. Issuing a
// new challenge silently replaces the previous one; concurrent ceremonies
// from the same session are not supported. Consume is the only way out of a
// slot — exactly one of two racing finish calls observes the challenge.
type ChallengeStore struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*Pending
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{pending: make(map[uuid.UUID]*Pending)}
}

// Issue installs p as the session's pending challenge, overwriting any
// prior one.
func (s *ChallengeStore) Issue(sessionID uuid.UUID, p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[sessionID] = p
}

// Consume returns and clears the session's pending challenge. An expired
// challenge is cleared and reported as absent.
func (s *ChallengeStore) Consume(sessionID uuid.UUID) (*Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return nil, false
	}
	delete(s.pending, sessionID)

	if p.expired(time.Now()) {
		return nil, false
	}
	return p, true
}

// Drop discards the session's pending challenge, if any. Used on logout.
func (s *ChallengeStore) Drop(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, sessionID)
}
