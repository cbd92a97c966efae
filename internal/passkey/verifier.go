package passkey

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/clipsync/backend/internal/models"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// AttestationResult is what the verifier extracts from a valid registration
// response: the authenticator-assigned credential id and its COSE public
// key, plus bookkeeping metadata.
type AttestationResult struct {
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	AAGUID          []byte
	Transports      []string
	SignCount       uint32
	BackupEligible  bool
	BackupState     bool
}

// AssertionResult carries the post-verification authenticator state.
type AssertionResult struct {
	SignCount    uint32
	CloneWarning bool
}

// AssertionInput is the raw, already base64-decoded login response. ID is
// the credential id the client claims to be answering with; the ceremony
// looks the credential up by it before any verification happens.
type AssertionInput struct {
	ID                []byte
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

// RelyingParty issues ceremony parameters and verifies authenticator
// responses. It is the only component that touches WebAuthn cryptography;
// the ceremony treats it as a black box so tests can stub it out.
type RelyingParty interface {
	NewRegistrationChallenge(userHandle []byte, displayName string) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	NewLoginChallenge(allowed []models.Credential) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	VerifyRegistration(pending *Pending, clientDataJSON, attestationObject []byte) (*AttestationResult, error)
	VerifyAssertion(pending *Pending, cred *models.Credential, input AssertionInput) (*AssertionResult, error)
}

// WebAuthnRelyingParty implements RelyingParty on go-webauthn. The wire
// format at this boundary is the raw response parts rather than the
// browser's full JSON envelope, so verification reassembles the envelope
// and feeds it back through the library's own parsers before validating
// against the server-held session data.
type WebAuthnRelyingParty struct {
	rp *webauthn.WebAuthn
}

func NewWebAuthnRelyingParty(rp *webauthn.WebAuthn) *WebAuthnRelyingParty {
	return &WebAuthnRelyingParty{rp: rp}
}

// ceremonyUser satisfies webauthn.User. Registration uses it for the
// candidate identity; login uses it for the single credential being
// asserted against.
type ceremonyUser struct {
	id    []byte
	name  string
	creds []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return u.id }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.name }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (w *WebAuthnRelyingParty) NewRegistrationChallenge(userHandle []byte, displayName string) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	user := &ceremonyUser{id: userHandle, name: displayName}
	return w.rp.BeginRegistration(user)
}

func (w *WebAuthnRelyingParty) NewLoginChallenge(allowed []models.Credential) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	allowList := make([]protocol.CredentialDescriptor, len(allowed))
	for i, cred := range allowed {
		allowList[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.CredentialID,
		}
	}
	return w.rp.BeginDiscoverableLogin(webauthn.WithAllowedCredentials(allowList))
}

func (w *WebAuthnRelyingParty) VerifyRegistration(pending *Pending, clientDataJSON, attestationObject []byte) (*AttestationResult, error) {
	attResp := protocol.AuthenticatorAttestationResponse{
		AuthenticatorResponse: protocol.AuthenticatorResponse{
			ClientDataJSON: protocol.URLEncodedBase64(clientDataJSON),
		},
		AttestationObject: protocol.URLEncodedBase64(attestationObject),
	}

	// The credential id lives inside the attestation object; pull it out so
	// the reassembled envelope carries the id fields the parser requires.
	parsedAtt, err := attResp.Parse()
	if err != nil {
		return nil, &VerificationError{Reason: "malformed attestation response", Err: err}
	}
	credentialID := parsedAtt.AttestationObject.AuthData.AttData.CredentialID
	if len(credentialID) == 0 {
		return nil, &VerificationError{Reason: "attestation carries no credential id"}
	}

	body := protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(credentialID),
				Type: "public-key",
			},
			RawID: protocol.URLEncodedBase64(credentialID),
		},
		AttestationResponse: attResp,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
	if err != nil {
		return nil, &VerificationError{Reason: "invalid credential response", Err: err}
	}

	user := &ceremonyUser{id: pending.UserHandle, name: pending.DisplayName}
	credential, err := w.rp.CreateCredential(user, pending.Session, parsed)
	if err != nil {
		return nil, &VerificationError{Reason: "attestation rejected", Err: err}
	}

	transports := make([]string, len(credential.Transport))
	for i, t := range credential.Transport {
		transports[i] = string(t)
	}

	return &AttestationResult{
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		AAGUID:          credential.Authenticator.AAGUID,
		Transports:      transports,
		SignCount:       credential.Authenticator.SignCount,
		BackupEligible:  credential.Flags.BackupEligible,
		BackupState:     credential.Flags.BackupState,
	}, nil
}

func (w *WebAuthnRelyingParty) VerifyAssertion(pending *Pending, cred *models.Credential, input AssertionInput) (*AssertionResult, error) {
	body := protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(input.ID),
				Type: "public-key",
			},
			RawID: protocol.URLEncodedBase64(input.ID),
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: protocol.URLEncodedBase64(input.ClientDataJSON),
			},
			AuthenticatorData: protocol.URLEncodedBase64(input.AuthenticatorData),
			Signature:         protocol.URLEncodedBase64(input.Signature),
			UserHandle:        protocol.URLEncodedBase64(input.UserHandle),
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(raw))
	if err != nil {
		return nil, &VerificationError{Reason: "invalid assertion response", Err: err}
	}

	// Bind the session to the credential's owner now that the lookup has
	// decided which public key to verify against. The begin-login session
	// was issued without a user id because any registered device may answer.
	session := pending.Session
	session.UserID = cred.UserHandle

	user := &ceremonyUser{
		id:    cred.UserHandle,
		name:  cred.DisplayName,
		creds: []webauthn.Credential{webauthnCredential(cred)},
	}

	result, err := w.rp.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, &VerificationError{Reason: "assertion rejected", Err: err}
	}

	return &AssertionResult{
		SignCount:    result.Authenticator.SignCount,
		CloneWarning: result.Authenticator.CloneWarning,
	}, nil
}

func webauthnCredential(cred *models.Credential) webauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	if cred.Transports != "" {
		var ts []string
		if err := json.Unmarshal([]byte(cred.Transports), &ts); err == nil {
			for _, t := range ts {
				transports = append(transports, protocol.AuthenticatorTransport(t))
			}
		}
	}
	return webauthn.Credential{
		ID:              cred.CredentialID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    cred.AAGUID,
			SignCount: cred.SignCount,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: cred.BackupEligible,
			BackupState:    cred.BackupState,
		},
	}
}
