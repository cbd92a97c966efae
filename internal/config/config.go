package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	MinIO    MinIOConfig
	WebAuthn WebAuthnConfig
	Session  SessionConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type DBConfig struct {
	Driver   string // "sqlite" or "postgres"
	Path     string // sqlite database file
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

type SessionConfig struct {
	Duration time.Duration
}

type JWTConfig struct {
	Secret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3001"),
		},
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "clipsync.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "clipsync"),
			Password: getEnv("DB_PASSWORD", "clipsync_secret"),
			Name:     getEnv("DB_NAME", "clipsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "clipsync"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "clipsync_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "clipsync"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		WebAuthn: WebAuthnConfig{
			RPID:          getEnv("WEBAUTHN_RP_ID", "localhost"),
			RPDisplayName: getEnv("WEBAUTHN_RP_NAME", "ClipSync"),
			RPOrigins:     getEnvAsList("WEBAUTHN_RP_ORIGINS", "http://localhost:8080"),
		},
		Session: SessionConfig{
			// Half-year browser sessions: a personal service trades session
			// hygiene for not prompting for a passkey on every visit.
			Duration: getEnvAsDuration("SESSION_DURATION", 180*24*time.Hour),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	value := getEnv(key, fallback)
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
