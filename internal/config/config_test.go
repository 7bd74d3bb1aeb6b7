package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://localhost:8080/ws", cfg.WebSocketURL)
	assert.Equal(t, "https://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, DefaultSTUN, cfg.STUNServer)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	assert.False(t, cfg.Insecure)
}

func TestFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("ROOMCAST_DOMAIN", "env.example.com")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "flag.example.com", cfg.Domain)

	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.Domain)
}

func TestInsecureSwitchesSchemes(t *testing.T) {
	cfg, err := Load(Options{Domain: "example.com", Insecure: true})
	require.NoError(t, err)

	assert.Equal(t, "ws://example.com/ws", cfg.WebSocketURL)
	assert.Equal(t, "http://example.com", cfg.APIBaseURL)
	assert.Equal(t, "http://example.com/r/r1", cfg.GetRoomLink("r1"))
}

func TestInsecureFromEnvironment(t *testing.T) {
	t.Setenv("ROOMCAST_INSECURE", "true")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.True(t, cfg.Insecure)
}

func TestForceRelayRequiresTURN(t *testing.T) {
	_, err := Load(Options{ForceRelay: true})
	require.Error(t, err)

	cfg, err := Load(Options{ForceRelay: true, TURNServer: "turn:turn.example.com"})
	require.NoError(t, err)
	assert.True(t, cfg.ForceRelay)
}

func TestTURNServerExpansion(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Nil(t, cfg.GetTURNServers())

	t.Setenv("TURN_SERVER", "turn:turn.example.com")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "pass")
	cfg, err = Load(Options{})
	require.NoError(t, err)

	urls := cfg.GetTURNServers()
	require.Len(t, urls, 3)
	assert.Equal(t, "turn:turn.example.com:3478?transport=udp", urls[0])
	assert.Equal(t, "turn:turn.example.com:3478?transport=tcp", urls[1])
	assert.Equal(t, "turns:turn.example.com:5349?transport=tcp", urls[2])

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "user", user)
	assert.Equal(t, "pass", pass)
}
