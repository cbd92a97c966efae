package passkey

import (
	"errors"
	"sync"
	"time"

	"github.com/clipsync/backend/internal/models"
	"gorm.io/gorm"
)

// CredentialStore is the durable registry of passkey credentials.
// Implementations must be safe for concurrent use; Add must persist before
// returning and must detect duplicate credential ids race-free.
type CredentialStore interface {
	// List returns all registered credentials in insertion order.
	List() ([]models.Credential, error)

	// Add persists a new credential. Returns ErrDuplicateCredentialID if
	// the credential id is already registered.
	Add(cred *models.Credential) error

	// FindByCredentialID looks up a credential by exact byte match of its
	// authenticator-assigned id. Returns ErrUnknownCredential when absent.
	FindByCredentialID(credentialID []byte) (*models.Credential, error)

	// IsEmpty reports whether no credentials are registered yet. The
	// bootstrap registration rule hinges on this.
	IsEmpty() (bool, error)

	// MarkUsed records a successful login with the credential.
	MarkUsed(credentialID []byte, signCount uint32) error
}

// GormCredentialStore stores credentials in the credentials table. A store
// mutex serializes Add so the duplicate check and insert cannot interleave;
// registrations are rare, so the global lock costs nothing.
type GormCredentialStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

func (s *GormCredentialStore) List() ([]models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Order("created_at ASC").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *GormCredentialStore) Add(cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.Model(&models.Credential{}).
		Where("credential_id = ?", cred.CredentialID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateCredentialID
	}

	return s.db.Create(cred).Error
}

func (s *GormCredentialStore) FindByCredentialID(credentialID []byte) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.Where("credential_id = ?", credentialID).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCredential
		}
		return nil, err
	}
	return &cred, nil
}

func (s *GormCredentialStore) IsEmpty() (bool, error) {
	var count int64
	if err := s.db.Model(&models.Credential{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

func (s *GormCredentialStore) MarkUsed(credentialID []byte, signCount uint32) error {
	now := time.Now()
	return s.db.Model(&models.Credential{}).
		Where("credential_id = ?", credentialID).
		Updates(map[string]interface{}{
			"sign_count":   signCount,
			"last_used_at": now,
		}).Error
}
