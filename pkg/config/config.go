// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Token issuance
	Issuer          string
	SigningKey      string // HS256 secret for access/id/session tokens
	AccessTokenTTL  time.Duration
	IDTokenTTL      time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration
	CodeTTL         time.Duration // authorization code lifetime

	// Interactive login page the authorize endpoint challenges to
	LoginURL string

	// Invitations
	InvitationTTL time.Duration

	// Mail
	SMTPAddr string // host:port, empty disables the SMTP sender
	SMTPFrom string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("GOMSLE_ENV", "dev"),
		HTTPAddr:        env("GOMSLE_HTTP_ADDR", ":8080"),
		Issuer:          env("OIDC_ISSUER", "http://localhost:8080"),
		SigningKey:      env("SIGNING_KEY", ""),
		AccessTokenTTL:  envDur("ACCESS_TOKEN_TTL_SEC", 3600) * time.Second,
		IDTokenTTL:      envDur("ID_TOKEN_TTL_SEC", 3600) * time.Second,
		RefreshTokenTTL: envDur("REFRESH_TOKEN_TTL_SEC", 30*24*3600) * time.Second,
		SessionTTL:      envDur("SESSION_TTL_SEC", 24*3600) * time.Second,
		CodeTTL:         envDur("CODE_TTL_SEC", 300) * time.Second,
		LoginURL:        env("LOGIN_URL", "http://localhost:3000/login"),
		InvitationTTL:   envDur("INVITATION_TTL_SEC", 7*24*3600) * time.Second,
		SMTPAddr:        env("SMTP_ADDR", ""),
		SMTPFrom:        env("SMTP_FROM", "no-reply@gomsle.com"),
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory stores for dev")
	}
	if cfg.SigningKey == "" {
		log.Println("[WARN] SIGNING_KEY not set — tokens are signed with an ephemeral key")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
