package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/madupadilshan/Network-Automation/internal/session"
)

// Credential environment variables.
const (
	EnvUsername = "ROUTER_USERNAME"
	EnvPassword = "ROUTER_PASSWORD"
	EnvSecret   = "ROUTER_SECRET"
)

// Credential is the process-wide login material.
type Credential = session.Credential

// CredentialMissingError lists the credential variables that are unset.
type CredentialMissingError struct {
	Missing []string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("missing credentials: %s (set them in the environment or a .env file)", strings.Join(e.Missing, ", "))
}

// LoadCredentials reads credentials from envFile, when it exists, and from
// the process environment. Process environment values win.
func LoadCredentials(envFile string) (Credential, error) {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Credential{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return fileVals[key]
	}

	cred := Credential{
		Username: lookup(EnvUsername),
		Password: lookup(EnvPassword),
		Secret:   lookup(EnvSecret),
	}
	var missing []string
	if cred.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if cred.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if cred.Secret == "" {
		missing = append(missing, EnvSecret)
	}
	if len(missing) > 0 {
		return Credential{}, &CredentialMissingError{Missing: missing}
	}
	return cred, nil
}
