package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultDomain     = "localhost:8080"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultListenAddr = ":8080"
	DefaultJWTSecret  = "roomcast-dev-secret"
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server domain (host or host:port)
	Domain string

	// Insecure selects ws/http instead of wss/https
	Insecure bool

	// WebSocketURL and APIBaseURL are constructed from domain
	WebSocketURL string
	APIBaseURL   string

	// Token is the bearer credential for the REST and websocket surfaces
	Token string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay pins media to TURN even when direct paths might work
	ForceRelay bool

	// Server-side settings (serve command)
	ListenAddr string
	JWTSecret  string
	RedisAddr  string
	RedisPass  string
	RedisDB    int
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	Insecure   bool
	Token      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	ListenAddr string
	JWTSecret  string
	RedisAddr  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("ROOMCAST_DOMAIN"), DefaultDomain)
	token := firstOf(opts.Token, os.Getenv("ROOMCAST_TOKEN"), "")
	stunServer := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), "")
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), "")
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), "")
	listenAddr := firstOf(opts.ListenAddr, os.Getenv("ROOMCAST_LISTEN"), DefaultListenAddr)
	jwtSecret := firstOf(opts.JWTSecret, os.Getenv("ROOMCAST_JWT_SECRET"), DefaultJWTSecret)
	redisAddr := firstOf(opts.RedisAddr, os.Getenv("REDIS_ADDR"), "")

	insecure := opts.Insecure
	if !insecure {
		if v, err := strconv.ParseBool(os.Getenv("ROOMCAST_INSECURE")); err == nil {
			insecure = v
		}
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		if v, err := strconv.ParseBool(os.Getenv("ROOMCAST_FORCE_RELAY")); err == nil {
			forceRelay = v
		}
	}

	if forceRelay && turnServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	wsScheme, httpScheme := "wss", "https"
	if insecure {
		wsScheme, httpScheme = "ws", "http"
	}

	redisDB := 0
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		redisDB = v
	}

	return &Config{
		Domain:       domain,
		Insecure:     insecure,
		WebSocketURL: fmt.Sprintf("%s://%s/ws", wsScheme, domain),
		APIBaseURL:   fmt.Sprintf("%s://%s", httpScheme, domain),
		Token:        token,
		STUNServer:   stunServer,
		TURNServer:   turnServer,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
		ForceRelay:   forceRelay,
		ListenAddr:   listenAddr,
		JWTSecret:    jwtSecret,
		RedisAddr:    redisAddr,
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:      redisDB,
	}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. The configured value
// may be a bare host or carry a turn: scheme.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
