// Package config loads the process environment into a typed Cfg struct.
package config

import (
	"github.com/tomazk/envcfg"
)

// insecureDefaultJWTSecret and insecureDefaultEncryptionKey are used only
// when the operator has not set the corresponding environment variable.
// A 32-byte all-zero key, base64-encoded, so crypto.NewBox always succeeds
// against the fallback.
const (
	insecureDefaultJWTSecret      = "dev-insecure-jwt-secret-do-not-use-in-production"
	insecureDefaultEncryptionKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

// Cfg is the process configuration, populated from the environment.
type Cfg struct {
	JWTSecret     string `envcfg:"JWT_SECRET"`
	EncryptionKey string `envcfg:"ENCRYPTION_KEY"`
	TZ            string `envcfg:"TZ"`
	LogLevel      string `envcfg:"LOG_LEVEL"`
	FrontendURL   string `envcfg:"FRONTEND_URL"`
	StoreDSN      string `envcfg:"STORE_DSN"`
	ListenAddr    string `envcfg:"LISTEN_ADDR"`
}

// Load reads Cfg from the environment and fills in defaults for anything
// the operator left unset.
func Load() (Cfg, []string, error) {
	var c Cfg
	if err := envcfg.Unmarshal(&c); err != nil {
		return c, nil, err
	}

	var warnings []string
	if c.JWTSecret == "" {
		c.JWTSecret = insecureDefaultJWTSecret
		warnings = append(warnings, "JWT_SECRET not set; using insecure development default")
	}
	if c.EncryptionKey == "" {
		c.EncryptionKey = insecureDefaultEncryptionKey
		warnings = append(warnings, "ENCRYPTION_KEY not set; using insecure development default")
	}
	if c.TZ == "" {
		c.TZ = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StoreDSN == "" {
		c.StoreDSN = "sqlite://./data/releases.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	return c, warnings, nil
}
