package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file when one is present. Missing files are
// not an error; explicit environment always wins.
func LoadEnv() {
	godotenv.Load()
}

// Getenv returns the named environment variable or a fallback.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ClientConfig configures the chat client.
type ClientConfig struct {
	// BackendURL is the dev backend's HTTP base URL, e.g.
	// "http://localhost:8000". The websocket endpoint is derived
	// from it.
	BackendURL string
	// Provider is the identity provider kind passed to sign-in.
	Provider string
	// Local runs against an embedded in-memory backend instead of a
	// server.
	Local bool
}

func NewClientConfig(backendURL, provider string, local bool) (*ClientConfig, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if !local && backendURL == "" {
		return nil, fmt.Errorf("backend URL cannot be empty")
	}

	return &ClientConfig{
		BackendURL: backendURL,
		Provider:   provider,
		Local:      local,
	}, nil
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// GrantDelay is how long an interactive sign-in grant stays
	// unresolved, simulating the provider's popup.
	GrantDelay time.Duration
}

func NewServerConfig(serverAddr, base64Secret string, allowedOrigins []string, grantDelay time.Duration) (*ServerConfig, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if grantDelay < 0 {
		return nil, fmt.Errorf("grant delay cannot be negative")
	}

	signingKey, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &ServerConfig{
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		GrantDelay:     grantDelay,
	}, nil
}
