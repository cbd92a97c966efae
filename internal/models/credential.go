package models

import "time"

// Credential is one registered passkey. UserHandle is the server-generated
// WebAuthn user id handed out at registration; CredentialID is assigned by
// the authenticator and is the lookup key during login. Both are opaque
// byte strings. Rows are immutable after creation except for the sign
// counter and last-used bookkeeping.
type Credential struct {
	BaseModel
	UserHandle      []byte     `json:"-" gorm:"type:bytea;not null"`
	DisplayName     string     `json:"displayName" gorm:"type:varchar(255);not null"`
	CredentialID    []byte     `json:"-" gorm:"type:bytea;uniqueIndex;not null"`
	PublicKey       []byte     `json:"-" gorm:"type:bytea;not null"`
	AttestationType string     `json:"-" gorm:"type:varchar(64)"`
	AAGUID          []byte     `json:"-" gorm:"type:bytea"`
	Transports      string     `json:"-" gorm:"type:text"`
	SignCount       uint32     `json:"-" gorm:"default:0"`
	BackupEligible  bool       `json:"backupEligible" gorm:"default:false"`
	BackupState     bool       `json:"backupState" gorm:"default:false"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
}
