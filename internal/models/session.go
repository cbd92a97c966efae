package models

import "time"

// Session is one browser session. The cookie carries the raw token; only
// its SHA-256 hash is stored. Authenticated flips to true after a
// successful ceremony and never back (logout deletes the row).
type Session struct {
	BaseModel
	TokenHash     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Authenticated bool      `json:"authenticated" gorm:"default:false"`
	ExpiresAt     time.Time `json:"-" gorm:"not null;index"`
}
