package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DaemonEnv holds daemon tunables read from the environment.
type DaemonEnv struct {
	SocketPath string `env:"MUMD_SOCKET, default=/tmp/mumd.sock"`
	ConfigPath string `env:"MUMD_CONFIG"`
	LogLevel   string `env:"MUMD_LOG_LEVEL, default=info"`
	LogFormat  string `env:"MUMD_LOG_FORMAT, default=text"`

	// EventLogPath is the SQLite event journal. Empty keeps it next to the
	// config file.
	EventLogPath string `env:"MUMD_EVENT_LOG"`

	// Keepalive tuning. The timeout must exceed the interval or the daemon
	// would disconnect before the first pong can arrive.
	KeepaliveInterval time.Duration `env:"MUMD_KEEPALIVE_INTERVAL, default=10s"`
	KeepaliveTimeout  time.Duration `env:"MUMD_KEEPALIVE_TIMEOUT, default=30s"`

	// StreamTimeout reaps a remote user's voice stream after this long
	// without packets.
	StreamTimeout time.Duration `env:"MUMD_STREAM_TIMEOUT, default=5s"`

	// JitterDepth is the target jitter buffer depth in frames.
	JitterDepth int `env:"MUMD_JITTER_DEPTH, default=5"`

	// MetricsAddr serves Prometheus metrics over HTTP when set.
	MetricsAddr string `env:"MUMD_METRICS"`
}

// NewDaemonEnvFromEnv reads daemon options from the environment.
func NewDaemonEnvFromEnv(ctx context.Context) (*DaemonEnv, error) {
	var cfg DaemonEnv
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
