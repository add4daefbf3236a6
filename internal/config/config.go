// Package config centralizes environment-driven configuration for the
// signaling server and moderator service. Values are read once at startup;
// the ICE server list is handed to clients at match time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/talknow/signaling/internal/protocol"
)

// Server holds tunable parameters for the signaling server process.
type Server struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MetricsAddr    string        // address for /metrics and /health
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations

	RedisAddr string
	NATSURL   string

	ModerationTimeout time.Duration // bound on the moderation collaborator call

	ICEServers []protocol.ICEServer
}

// Moderator holds configuration for the moderator service process.
type Moderator struct {
	RedisAddr   string
	NATSURL     string
	PostgresURL string
}

// defaultICEServers mirrors the production STUN/TURN set: public Google STUN
// plus OpenRelay TURN (free tier). Overridable via ICE_SERVERS (JSON array).
var defaultICEServers = []protocol.ICEServer{
	{URLs: "stun:stun.l.google.com:19302"},
	{URLs: "stun:stun1.l.google.com:19302"},
	{URLs: "stun:stun2.l.google.com:19302"},
	{URLs: "turn:openrelay.metered.ca:80", Username: "openrelayproject", Credential: "openrelayproject"},
	{URLs: "turn:openrelay.metered.ca:443", Username: "openrelayproject", Credential: "openrelayproject"},
}

// LoadServer reads the signaling server configuration from the environment,
// falling back to production defaults for anything unset.
func LoadServer() (Server, error) {
	cfg := Server{
		ListenAddr:        envStr("LISTEN_ADDR", ":8080"),
		MetricsAddr:       envStr("METRICS_ADDR", ":9090"),
		WorkerPoolSize:    envInt("WORKER_POOL_SIZE", 256),
		MaxConnections:    envInt("MAX_CONNECTIONS", 100000),
		ReadTimeout:       envDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDuration("WRITE_TIMEOUT", 10*time.Second),
		RedisAddr:         envStr("REDIS_ADDR", "localhost:6379"),
		NATSURL:           envStr("NATS_URL", "nats://localhost:4222"),
		ModerationTimeout: envDuration("MODERATION_TIMEOUT", 3*time.Second),
		ICEServers:        defaultICEServers,
	}

	if raw := os.Getenv("ICE_SERVERS"); raw != "" {
		var servers []protocol.ICEServer
		if err := json.Unmarshal([]byte(raw), &servers); err != nil {
			return Server{}, fmt.Errorf("config: invalid ICE_SERVERS: %w", err)
		}
		if len(servers) == 0 {
			return Server{}, fmt.Errorf("config: ICE_SERVERS must not be empty")
		}
		cfg.ICEServers = servers
	}

	return cfg, nil
}

// LoadModerator reads the moderator service configuration from the environment.
func LoadModerator() Moderator {
	return Moderator{
		RedisAddr:   envStr("REDIS_ADDR", "localhost:6379"),
		NATSURL:     envStr("NATS_URL", "nats://localhost:4222"),
		PostgresURL: envStr("POSTGRES_URL", "postgres://localhost:5432/talknow?sslmode=disable"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
