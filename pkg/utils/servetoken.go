package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Serve tokens let <img> and <a> tags fetch file content without the browser
// attaching the session cookie, so links can be opened in other apps. They are
// short-lived and scoped to a single file.

type serveClaims struct {
	FileID string `json:"fid"`
	jwt.RegisteredClaims
}

// GenerateServeToken signs a token granting read access to one stored file.
func GenerateServeToken(secret string, fileID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := serveClaims{
		FileID: fileID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseServeToken validates a serve token and returns the file it grants.
func ParseServeToken(secret, tokenString string) (uuid.UUID, error) {
	claims := &serveClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid serve token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid serve token")
	}
	fileID, err := uuid.Parse(claims.FileID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid serve token subject: %w", err)
	}
	return fileID, nil
}
