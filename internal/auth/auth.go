// Package auth resolves the bearer credential used to open the stream.
//
// The credential is opaque: it is issued by the dashboard's login flow and
// only ever carried, never parsed or renewed.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvToken is the environment variable consulted when no token is configured.
const EnvToken = "BOTSTREAM_TOKEN"

// Errors
var (
	ErrNoToken        = errors.New("no bearer token configured")
	ErrEmptyTokenFile = errors.New("token file is empty")
)

// Source identifies where a credential came from.
type Source string

const (
	SourceConfig Source = "config"
	SourceEnv    Source = "env"
	SourceFile   Source = "file"
)

// Credentials holds the bearer token for the stream endpoint.
type Credentials struct {
	Token  string
	Source Source
}

// LoadCredentials resolves the token. The configured token wins, then the
// BOTSTREAM_TOKEN environment variable, then tokenFile.
func LoadCredentials(token, tokenFile string) (*Credentials, error) {
	return loadCredentials(token, tokenFile, os.Getenv)
}

func loadCredentials(token, tokenFile string, getenv func(string) string) (*Credentials, error) {
	if t := strings.TrimSpace(token); t != "" {
		return &Credentials{Token: t, Source: SourceConfig}, nil
	}

	if t := strings.TrimSpace(getenv(EnvToken)); t != "" {
		return &Credentials{Token: t, Source: SourceEnv}, nil
	}

	if tokenFile != "" {
		t, err := LoadTokenFile(tokenFile)
		if err != nil {
			return nil, err
		}
		return &Credentials{Token: t, Source: SourceFile}, nil
	}

	return nil, ErrNoToken
}

// LoadTokenFile reads a token from path, trimming surrounding whitespace.
func LoadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyTokenFile)
	}
	return token, nil
}

// Redacted returns a form of the token safe for logs.
func (c *Credentials) Redacted() string {
	if c == nil || c.Token == "" {
		return ""
	}
	if len(c.Token) <= 8 {
		return "****"
	}
	return c.Token[:4] + "****"
}
