package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.DeliveredCheckDelay)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, "memory", cfg.StoreBackend)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("JWT_SECRET", "shhh")
	t.Setenv("HANDSHAKE_TIMEOUT_SECONDS", "5")
	t.Setenv("DELIVERED_CHECK_DELAY_MS", "250")
	t.Setenv("READ_BUFFER_SIZE", "4096")
	t.Setenv("WRITE_BUFFER_SIZE", "2048")
	t.Setenv("SEND_BUFFER_SIZE", "128")
	t.Setenv("STORE_BACKEND", "redis")

	cfg := FromEnv()
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "shhh", cfg.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.DeliveredCheckDelay)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.Equal(t, 2048, cfg.WriteBufferSize)
	assert.Equal(t, 128, cfg.SendBufferSize)
	assert.Equal(t, "redis", cfg.StoreBackend)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HANDSHAKE_TIMEOUT_SECONDS", "zero")
	t.Setenv("DELIVERED_CHECK_DELAY_MS", "soon")
	t.Setenv("READ_BUFFER_SIZE", "0")
	t.Setenv("SEND_BUFFER_SIZE", "-1")

	cfg := FromEnv()
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.DeliveredCheckDelay)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
}
