package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/clipsync/backend/internal/middleware"
	"github.com/clipsync/backend/internal/passkey"
	"github.com/clipsync/backend/internal/session"
	"github.com/clipsync/backend/pkg/logger"
	"github.com/clipsync/backend/pkg/utils"
)

type AuthHandler struct {
	ceremony *passkey.Ceremony
	sessions *session.Manager
	store    passkey.CredentialStore
}

func NewAuthHandler(ceremony *passkey.Ceremony, sessions *session.Manager, store passkey.CredentialStore) *AuthHandler {
	return &AuthHandler{ceremony: ceremony, sessions: sessions, store: store}
}

// Status reports whether the current session is authenticated and whether any
// device has ever been registered. The client uses it to decide between
// showing the login prompt and the first-device setup flow.
func (h *AuthHandler) Status(c *fiber.Ctx) error {
	empty, err := h.store.IsEmpty()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to check credentials")
	}
	return utils.Success(c, fiber.Map{
		"loggedIn": middleware.Authenticated(c),
		"hasUsers": !empty,
	})
}

func (h *AuthHandler) BeginRegistration(c *fiber.Ctx) error {
	creation, err := h.ceremony.BeginRegistration(middleware.SessionID(c), middleware.Authenticated(c))
	if err != nil {
		return ceremonyError(c, err)
	}
	return utils.Success(c, creation)
}

type finishRegistrationRequest struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject"`
}

func (h *AuthHandler) FinishRegistration(c *fiber.Ctx) error {
	var req finishRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	clientDataJSON, err := decodeBase64(req.ClientDataJSON)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid clientDataJSON encoding")
	}
	attestationObject, err := decodeBase64(req.AttestationObject)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid attestationObject encoding")
	}

	cred, err := h.ceremony.FinishRegistration(middleware.SessionID(c), clientDataJSON, attestationObject)
	if err != nil {
		return ceremonyError(c, err)
	}

	if err := h.sessions.MarkAuthenticated(middleware.SessionID(c)); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to update session")
	}
	return utils.Success(c, fiber.Map{
		"registered":  true,
		"displayName": cred.DisplayName,
	})
}

func (h *AuthHandler) BeginLogin(c *fiber.Ctx) error {
	assertion, err := h.ceremony.BeginLogin(middleware.SessionID(c))
	if err != nil {
		return ceremonyError(c, err)
	}
	return utils.Success(c, assertion)
}

type finishLoginRequest struct {
	ID                string `json:"id"`
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle"`
}

func (h *AuthHandler) FinishLogin(c *fiber.Ctx) error {
	var req finishLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	input := passkey.AssertionInput{}
	var err error
	if input.ID, err = decodeBase64(req.ID); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid id encoding")
	}
	if input.ClientDataJSON, err = decodeBase64(req.ClientDataJSON); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid clientDataJSON encoding")
	}
	if input.AuthenticatorData, err = decodeBase64(req.AuthenticatorData); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid authenticatorData encoding")
	}
	if input.Signature, err = decodeBase64(req.Signature); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid signature encoding")
	}
	if req.UserHandle != "" {
		if input.UserHandle, err = decodeBase64(req.UserHandle); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "Invalid userHandle encoding")
		}
	}

	cred, err := h.ceremony.FinishLogin(middleware.SessionID(c), input)
	if err != nil {
		return ceremonyError(c, err)
	}

	if err := h.sessions.MarkAuthenticated(middleware.SessionID(c)); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to update session")
	}
	return utils.Success(c, fiber.Map{
		"loggedIn":    true,
		"displayName": cred.DisplayName,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sessionID := middleware.SessionID(c)
	if err := h.sessions.Invalidate(sessionID); err != nil {
		logger.Error("logout_failed", err, map[string]interface{}{
			"session_id": sessionID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to log out")
	}
	c.ClearCookie("clipsync_session")
	return utils.Success(c, fiber.Map{"loggedOut": true})
}

// ceremonyError maps ceremony failures onto HTTP statuses. Every failure path
// lands here; a broken ceremony never takes the process down.
func ceremonyError(c *fiber.Ctx, err error) error {
	var verr *passkey.VerificationError
	switch {
	case errors.Is(err, passkey.ErrUnauthorized):
		return utils.Error(c, fiber.StatusUnauthorized, "Not authorized to register a device")
	case errors.Is(err, passkey.ErrNoCredentials):
		return utils.Error(c, fiber.StatusBadRequest, "No devices registered")
	case errors.Is(err, passkey.ErrNoPendingChallenge):
		return utils.Error(c, fiber.StatusBadRequest, "No pending challenge")
	case errors.Is(err, passkey.ErrWrongChallengeKind):
		return utils.Error(c, fiber.StatusBadRequest, "Challenge does not match this ceremony")
	case errors.Is(err, passkey.ErrUnknownCredential):
		return utils.Error(c, fiber.StatusBadRequest, "Unknown device")
	case errors.Is(err, passkey.ErrDuplicateCredentialID):
		return utils.Error(c, fiber.StatusConflict, "Device already registered")
	case errors.As(err, &verr):
		return utils.Error(c, fiber.StatusBadRequest, "Verification failed: "+verr.Reason)
	default:
		logger.Error("ceremony_error", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "Authentication failed")
	}
}
