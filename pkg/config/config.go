// Package config centralizes the sidecar's environment-variable driven
// configuration, replacing the teacher's ad hoc os.Getenv calls scattered
// through internal/infrastructure/database/tidb.go with a single loader.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the sidecar's full runtime configuration.
type Config struct {
	// Port is the TCP port to bind. Zero means "let the OS choose" (dynamic
	// port discovery, spec.md §4.3).
	Port int

	// DBPath is the path to the SQLite database file.
	DBPath string

	// ParentPID is the host UI's process id, used by the heartbeat monitor
	// (spec.md §4.3 mechanism 2). Zero disables the monitor.
	ParentPID int

	// OutboxPollInterval is how often the relay polls when the outbox is
	// non-empty (it also wakes immediately on a commit signal).
	OutboxPollInterval time.Duration

	// OutboxIdleBackoff is the sleep applied when a poll finds nothing
	// pending, before the next wakeup signal or timeout.
	OutboxIdleBackoff time.Duration

	// OutboxRetention is how long shipped envelopes are kept before pruning.
	// spec.md §9 leaves this unquantified ("short"); default is a
	// conservative 24h.
	OutboxRetention time.Duration

	// OutboxMaxAttempts bounds the relay's retry count before an envelope
	// is parked in the failed state.
	OutboxMaxAttempts int

	// SSEQueueSize is the bounded per-subscriber queue depth before the
	// slow-subscriber eviction policy kicks in.
	SSEQueueSize int

	// SSEKeepAlive is the interval between keep-alive comments.
	SSEKeepAlive time.Duration

	// ShutdownGrace bounds how long in-flight requests are given to finish
	// during a graceful shutdown.
	ShutdownGrace time.Duration

	// HeartbeatInterval is how often the sidecar polls for parent liveness.
	HeartbeatInterval time.Duration

	// DevMode switches the logger to a colorized console encoder.
	DevMode bool
}

// Load reads configuration from the environment (and an optional .env file
// in the current directory, ignored if absent), applying the defaults spec.md
// calls for.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:               envInt("CUTIE_PORT", 0),
		DBPath:              envString("CUTIE_DB_PATH", "cutie.db"),
		ParentPID:           envInt("CUTIE_PARENT_PID", 0),
		OutboxPollInterval:  envDuration("CUTIE_OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxIdleBackoff:   envDuration("CUTIE_OUTBOX_IDLE_BACKOFF", 2*time.Second),
		OutboxRetention:     envDuration("CUTIE_OUTBOX_RETENTION", 24*time.Hour),
		OutboxMaxAttempts:   envInt("CUTIE_OUTBOX_MAX_ATTEMPTS", 5),
		SSEQueueSize:        envInt("CUTIE_SSE_QUEUE_SIZE", 128),
		SSEKeepAlive:        envDuration("CUTIE_SSE_KEEPALIVE", 30*time.Second),
		ShutdownGrace:       envDuration("CUTIE_SHUTDOWN_GRACE", 5*time.Second),
		HeartbeatInterval:   envDuration("CUTIE_HEARTBEAT_INTERVAL", 2*time.Second),
		DevMode:             envBool("CUTIE_DEV_MODE", true),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
