package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/clipsync/backend/internal/middleware"
	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/internal/passkey"
	"github.com/clipsync/backend/internal/session"
	"github.com/clipsync/backend/pkg/logger"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	rp       *fakeRelyingParty
	sessions *session.Manager
}

var testSetupOnce sync.Once

// fakeRelyingParty stands in for go-webauthn so ceremony endpoints can be
// exercised over HTTP without real authenticator responses.
type fakeRelyingParty struct {
	regResult    *passkey.AttestationResult
	regErr       error
	assertResult *passkey.AssertionResult
	assertErr    error
}

func (f *fakeRelyingParty) NewRegistrationChallenge(userHandle []byte, displayName string) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "reg-challenge"}, nil
}

func (f *fakeRelyingParty) NewLoginChallenge(allowed []models.Credential) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "login-challenge"}, nil
}

func (f *fakeRelyingParty) VerifyRegistration(pending *passkey.Pending, clientDataJSON, attestationObject []byte) (*passkey.AttestationResult, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	return f.regResult, nil
}

func (f *fakeRelyingParty) VerifyAssertion(pending *passkey.Pending, cred *models.Credential, input passkey.AssertionInput) (*passkey.AssertionResult, error) {
	if f.assertErr != nil {
		return nil, f.assertErr
	}
	return f.assertResult, nil
}

// memoryObjectStore keeps uploaded blobs in a map.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (s *memoryObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.Credential{},
		&models.Session{},
		&models.ClipEntry{},
		&models.StoredFile{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	challenges := passkey.NewChallengeStore()
	sessions := session.NewManager(db, time.Hour, challenges)
	credStore := passkey.NewCredentialStore(db)
	rp := &fakeRelyingParty{}
	ceremony := passkey.NewCeremony(credStore, challenges, rp, sessions)

	authHandler := NewAuthHandler(ceremony, sessions, credStore)
	clipHandler := NewClipboardHandler(db)
	fileHandler := NewFileHandler(db, newMemoryObjectStore(), testJWTSecret)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))

	api := app.Group("/api", middleware.EnsureSession(sessions, time.Hour, false))
	api.Get("/status", authHandler.Status)
	api.Post("/register/begin", authHandler.BeginRegistration)
	api.Post("/register/finish", authHandler.FinishRegistration)
	api.Post("/login/begin", authHandler.BeginLogin)
	api.Post("/login/finish", authHandler.FinishLogin)
	api.Post("/logout", authHandler.Logout)
	api.Get("/files/:id/content", fileHandler.Content)

	authed := api.Group("", middleware.RequireAuth())
	authed.Post("/clipboard", clipHandler.Save)
	authed.Get("/clipboard", clipHandler.List)
	authed.Post("/files", fileHandler.Upload)
	authed.Get("/files", fileHandler.List)
	authed.Post("/hide", fileHandler.Hide)

	return &testEnv{app: app, db: db, rp: rp, sessions: sessions}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}
	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// sessionCookie pulls the session cookie out of a response so later
// requests can present it.
func sessionCookie(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "clipsync_session" {
			return map[string]string{"Cookie": cookie.Name + "=" + cookie.Value}
		}
	}
	t.Fatal("response carries no session cookie")
	return nil
}

// newSession hits /api/status to mint a fresh unauthenticated session.
func newSession(t *testing.T, env *testEnv) map[string]string {
	t.Helper()
	resp := performRequest(t, env.app, http.MethodGet, "/api/status", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	headers := sessionCookie(t, resp)
	resp.Body.Close()
	return headers
}

// registerSession runs a full fake registration ceremony, returning headers
// for the now-authenticated session.
func registerSession(t *testing.T, env *testEnv, credentialID string) map[string]string {
	t.Helper()

	env.rp.regResult = &passkey.AttestationResult{
		CredentialID:    []byte(credentialID),
		PublicKey:       []byte("key-" + credentialID),
		AttestationType: "none",
	}

	headers := newSession(t, env)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/register/begin", nil, headers)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/register/finish", map[string]string{
		"clientDataJSON":    "e30",
		"attestationObject": "e30",
	}, headers)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	return headers
}
