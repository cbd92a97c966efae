package passkey

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/pkg/logger"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
)

// Client-side authenticator timeouts, mirrored server-side as challenge
// expiries. The grace period absorbs network latency between the
// authenticator finishing and the finish request arriving.
const (
	RegistrationTimeout = 20 * time.Second
	LoginTimeout        = 120 * time.Second
	challengeGrace      = 10 * time.Second
)

// SessionAuthenticator is the slice of the session manager the ceremony
// needs: flipping a session to authenticated after a successful finish.
type SessionAuthenticator interface {
	MarkAuthenticated(sessionID uuid.UUID) error
}

// Ceremony drives the two ceremony tracks, registration and login. Every
// operation takes the browser session id explicitly; there is no ambient
// session state. A finish call always consumes the session's pending
// challenge, success or not, so a failed attempt cannot be replayed — the
// caller has to begin again.
type Ceremony struct {
	store      CredentialStore
	challenges *ChallengeStore
	rp         RelyingParty
	sessions   SessionAuthenticator
}

func NewCeremony(store CredentialStore, challenges *ChallengeStore, rp RelyingParty, sessions SessionAuthenticator) *Ceremony {
	return &Ceremony{store: store, challenges: challenges, rp: rp, sessions: sessions}
}

// BeginRegistration starts the registration track. It is allowed for an
// unauthenticated session only while the store is empty: the very first
// device is self-service (there is no invite mechanism), every later one
// requires a logged-in session. That asymmetry is the security boundary of
// the whole system — do not widen it.
func (c *Ceremony) BeginRegistration(sessionID uuid.UUID, authenticated bool) (*protocol.CredentialCreation, error) {
	empty, err := c.store.IsEmpty()
	if err != nil {
		return nil, err
	}
	if !empty && !authenticated {
		return nil, ErrUnauthorized
	}

	creds, err := c.store.List()
	if err != nil {
		return nil, err
	}

	userHandle := make([]byte, 16)
	if _, err := rand.Read(userHandle); err != nil {
		return nil, err
	}
	displayName := fmt.Sprintf("User %d", len(creds)+1)

	options, session, err := c.rp.NewRegistrationChallenge(userHandle, displayName)
	if err != nil {
		return nil, err
	}

	c.challenges.Issue(sessionID, &Pending{
		Kind:        ChallengeRegistration,
		Challenge:   string(session.Challenge),
		UserHandle:  userHandle,
		DisplayName: displayName,
		Session:     *session,
		ExpiresAt:   time.Now().Add(RegistrationTimeout + challengeGrace),
	})

	if empty {
		logger.Info("bootstrap_register_begin", map[string]interface{}{
			"session_id": sessionID.String(),
		})
	}

	return options, nil
}

// FinishRegistration completes the registration track: consume-once
// challenge, kind check, verification, durable credential insert, then
// session authentication. No partial state survives a failure.
func (c *Ceremony) FinishRegistration(sessionID uuid.UUID, clientDataJSON, attestationObject []byte) (*models.Credential, error) {
	pending, ok := c.challenges.Consume(sessionID)
	if !ok {
		return nil, ErrNoPendingChallenge
	}
	if pending.Kind != ChallengeRegistration {
		return nil, ErrWrongChallengeKind
	}

	result, err := c.rp.VerifyRegistration(pending, clientDataJSON, attestationObject)
	if err != nil {
		return nil, err
	}

	transports, _ := json.Marshal(result.Transports)
	cred := &models.Credential{
		UserHandle:      pending.UserHandle,
		DisplayName:     pending.DisplayName,
		CredentialID:    result.CredentialID,
		PublicKey:       result.PublicKey,
		AttestationType: result.AttestationType,
		AAGUID:          result.AAGUID,
		Transports:      string(transports),
		SignCount:       result.SignCount,
		BackupEligible:  result.BackupEligible,
		BackupState:     result.BackupState,
	}

	if err := c.store.Add(cred); err != nil {
		return nil, err
	}

	if err := c.sessions.MarkAuthenticated(sessionID); err != nil {
		return nil, err
	}

	logger.Info("device_registered", map[string]interface{}{
		"display_name": cred.DisplayName,
		"session_id":   sessionID.String(),
	})

	return cred, nil
}

// BeginLogin starts the login track. Any registered device may answer, so
// the options carry the full allow-list of known credential ids.
func (c *Ceremony) BeginLogin(sessionID uuid.UUID) (*protocol.CredentialAssertion, error) {
	creds, err := c.store.List()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	options, session, err := c.rp.NewLoginChallenge(creds)
	if err != nil {
		return nil, err
	}

	c.challenges.Issue(sessionID, &Pending{
		Kind:      ChallengeLogin,
		Challenge: string(session.Challenge),
		Session:   *session,
		ExpiresAt: time.Now().Add(LoginTimeout + challengeGrace),
	})

	return options, nil
}

// FinishLogin completes the login track. The credential to verify against
// comes from the store lookup by the claimed id — the client's word for
// which key it used is only a hint, never the source of truth. An unknown
// id fails before the verifier runs.
func (c *Ceremony) FinishLogin(sessionID uuid.UUID, input AssertionInput) (*models.Credential, error) {
	pending, ok := c.challenges.Consume(sessionID)
	if !ok {
		return nil, ErrNoPendingChallenge
	}
	if pending.Kind != ChallengeLogin {
		return nil, ErrWrongChallengeKind
	}

	cred, err := c.store.FindByCredentialID(input.ID)
	if err != nil {
		return nil, err
	}

	result, err := c.rp.VerifyAssertion(pending, cred, input)
	if err != nil {
		return nil, err
	}

	if result.CloneWarning {
		logger.Warn("authenticator_clone_warning", map[string]interface{}{
			"display_name": cred.DisplayName,
		})
	}

	if err := c.store.MarkUsed(cred.CredentialID, result.SignCount); err != nil {
		return nil, err
	}

	if err := c.sessions.MarkAuthenticated(sessionID); err != nil {
		return nil, err
	}

	logger.Info("device_login", map[string]interface{}{
		"display_name": cred.DisplayName,
		"session_id":   sessionID.String(),
	})

	return cred, nil
}

// DropChallenge discards the session's pending challenge, if any.
func (c *Ceremony) DropChallenge(sessionID uuid.UUID) {
	c.challenges.Drop(sessionID)
}
