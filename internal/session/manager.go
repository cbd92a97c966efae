package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a token does not match a live session.
var ErrNotFound = errors.New("session not found")

const tokenPrefix = "cls_"

// ChallengeDropper is notified when a session is invalidated so its pending
// ceremony challenge dies with it.
type ChallengeDropper interface {
	Drop(sessionID uuid.UUID)
}

// Manager owns browser session state. The cookie value is an opaque random
// token; only its SHA-256 hash is stored, so a leaked database does not
// leak live sessions. Sessions start unauthenticated and are flipped by the
// ceremony on success.
type Manager struct {
	db         *gorm.DB
	ttl        time.Duration
	challenges ChallengeDropper
}

func NewManager(db *gorm.DB, ttl time.Duration, challenges ChallengeDropper) *Manager {
	return &Manager{db: db, ttl: ttl, challenges: challenges}
}

// Create issues a fresh unauthenticated session and returns the raw cookie
// token alongside the stored row.
func (m *Manager) Create() (string, *models.Session, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	token := tokenPrefix + hex.EncodeToString(raw)

	sess := &models.Session{
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(m.ttl),
	}
	if err := m.db.Create(sess).Error; err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// Lookup resolves a raw cookie token to its session. Expired sessions are
// deleted on sight and reported as not found.
func (m *Manager) Lookup(token string) (*models.Session, error) {
	var sess models.Session
	err := m.db.Where("token_hash = ?", hashToken(token)).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if time.Now().After(sess.ExpiresAt) {
		m.db.Delete(&sess)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// MarkAuthenticated flips the session to authenticated. Idempotent.
func (m *Manager) MarkAuthenticated(sessionID uuid.UUID) error {
	return m.db.Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("authenticated", true).Error
}

// IsAuthenticated reports the session's current state.
func (m *Manager) IsAuthenticated(sessionID uuid.UUID) bool {
	var sess models.Session
	if err := m.db.First(&sess, "id = ?", sessionID).Error; err != nil {
		return false
	}
	return sess.Authenticated && time.Now().Before(sess.ExpiresAt)
}

// Invalidate deletes the session and discards any pending ceremony
// challenge bound to it. Used by logout.
func (m *Manager) Invalidate(sessionID uuid.UUID) error {
	if m.challenges != nil {
		m.challenges.Drop(sessionID)
	}
	return m.db.Delete(&models.Session{}, "id = ?", sessionID).Error
}

// StartCleanup periodically removes expired session rows.
func (m *Manager) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			result := m.db.Delete(&models.Session{}, "expires_at < ?", time.Now())
			if result.Error != nil {
				logger.Error("session_cleanup_failed", result.Error, nil)
			} else if result.RowsAffected > 0 {
				logger.Info("session_cleanup", map[string]interface{}{
					"removed": result.RowsAffected,
				})
			}
		}
	}()
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
