package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/clipsync/backend/internal/config"
	"github.com/clipsync/backend/internal/database"
	"github.com/clipsync/backend/internal/handlers"
	"github.com/clipsync/backend/internal/middleware"
	"github.com/clipsync/backend/internal/passkey"
	"github.com/clipsync/backend/internal/session"
	"github.com/clipsync/backend/internal/storage"
	"github.com/clipsync/backend/pkg/logger"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.Connect(&cfg.DB)
	if err != nil {
		logger.Error("startup_failed", err, map[string]interface{}{"component": "database"})
		os.Exit(1)
	}

	blobs, err := storage.NewMinioStore(&cfg.MinIO)
	if err != nil {
		logger.Error("startup_failed", err, map[string]interface{}{"component": "storage"})
		os.Exit(1)
	}

	web, err := webauthn.New(&webauthn.Config{
		RPID:                  cfg.WebAuthn.RPID,
		RPDisplayName:         cfg.WebAuthn.RPDisplayName,
		RPOrigins:             cfg.WebAuthn.RPOrigins,
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementDiscouraged,
			UserVerification: protocol.VerificationRequired,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    passkey.RegistrationTimeout,
				TimeoutUVD: passkey.RegistrationTimeout,
			},
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    passkey.LoginTimeout,
				TimeoutUVD: passkey.LoginTimeout,
			},
		},
	})
	if err != nil {
		logger.Error("startup_failed", err, map[string]interface{}{"component": "webauthn"})
		os.Exit(1)
	}

	challenges := passkey.NewChallengeStore()
	sessions := session.NewManager(db, cfg.Session.Duration, challenges)
	sessions.StartCleanup(time.Hour)

	credStore := passkey.NewCredentialStore(db)
	ceremony := passkey.NewCeremony(credStore, challenges, passkey.NewWebAuthnRelyingParty(web), sessions)

	authHandler := handlers.NewAuthHandler(ceremony, sessions, credStore)
	clipHandler := handlers.NewClipboardHandler(db)
	fileHandler := handlers.NewFileHandler(db, blobs, cfg.JWT.Secret)

	app := fiber.New(fiber.Config{
		AppName:   "clipsync",
		BodyLimit: 100 * 1024 * 1024,
	})
	app.Use(fiberrecover.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.FrontendURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	secureCookie := strings.HasPrefix(cfg.Server.FrontendURL, "https://")
	api := app.Group("/api", middleware.EnsureSession(sessions, cfg.Session.Duration, secureCookie))

	api.Get("/status", authHandler.Status)
	api.Post("/register/begin", authHandler.BeginRegistration)
	api.Post("/register/finish", authHandler.FinishRegistration)
	api.Post("/login/begin", authHandler.BeginLogin)
	api.Post("/login/finish", authHandler.FinishLogin)
	api.Post("/logout", authHandler.Logout)

	// Serve links carry their own token; everything else needs the cookie.
	api.Get("/files/:id/content", fileHandler.Content)

	authed := api.Group("", middleware.RequireAuth())
	authed.Post("/clipboard", clipHandler.Save)
	authed.Get("/clipboard", clipHandler.List)
	authed.Post("/files", fileHandler.Upload)
	authed.Get("/files", fileHandler.List)
	authed.Post("/hide", fileHandler.Hide)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()
	logger.Info("server_started", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server_error", err, nil)
		os.Exit(1)
	case sig := <-quit:
		logger.Info("shutting_down", map[string]interface{}{
			"signal": sig.String(),
		})
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown_error", err, nil)
		}
	}
}
