package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds realtime server configuration.
type Config struct {
	ListenAddr string

	// JWTSecret is the shared secret the auth service signs tokens with.
	JWTSecret string

	// HandshakeTimeout bounds how long a connection may stay
	// unauthenticated before it is closed.
	HandshakeTimeout time.Duration

	// DeliveredCheckDelay is how long after accepting a message the
	// recipient's presence is checked before marking it delivered.
	DeliveredCheckDelay time.Duration

	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int

	// StoreBackend selects the message store: "redis" or "memory".
	StoreBackend string
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:          ":8080",
		JWTSecret:           "change-me-in-production",
		HandshakeTimeout:    10 * time.Second,
		DeliveredCheckDelay: 100 * time.Millisecond,
		ReadBufferSize:      1024,
		WriteBufferSize:     1024,
		SendBufferSize:      256,
		StoreBackend:        "memory",
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	if v := os.Getenv("HANDSHAKE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HandshakeTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DELIVERED_CHECK_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DeliveredCheckDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("READ_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReadBufferSize = n
		}
	}
	if v := os.Getenv("WRITE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WriteBufferSize = n
		}
	}
	if v := os.Getenv("SEND_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendBufferSize = n
		}
	}
	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		cfg.StoreBackend = backend
	}
	return cfg
}
