package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default address the runtime's WebSocket server listens on.
	DefaultAddr = ":43127"
	// DefaultPingInterval controls the keepalive cadence for peer WebSocket connections; entry connections are not pinged.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxConnections is the default for Config.MaxConnections, which is read and validated
	// (zero allowed) but not passed to the RemoteManager; no connection limit is enforced.
	DefaultMaxConnections = 256

	// DefaultCleanerPeriod is the Store idle-sweeper wake interval.
	DefaultCleanerPeriod = time.Second
	// DefaultPickDeadline bounds how long a RemoteMedium.get_state PICK waits for its PICKACK.
	DefaultPickDeadline = 100 * time.Millisecond
	// DefaultReconnectInterval is the RemoteManager client reconnect backoff.
	DefaultReconnectInterval = time.Second
	// DefaultCompressThresholdBytes is the payload size above which peer frames are snappy-compressed.
	DefaultCompressThresholdBytes = 8 * 1024
	// DefaultAdmissionMinInterval is the minimum spacing enforced between accepted frames per peer link. Zero disables rate gating.
	DefaultAdmissionMinInterval = time.Duration(0)
	// DefaultAdmissionMaxAge is the maximum tolerated arrival jitter before a frame is treated as stale. Zero disables staleness gating.
	DefaultAdmissionMaxAge = time.Duration(0)

	// DefaultLogLevel controls verbosity for runtime logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "redux.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the store/medium runtime.
type Config struct {
	Address                string
	AllowedOrigins         []string
	MaxPayloadBytes        int64
	PingInterval           time.Duration
	MaxConnections         int
	TLSCertPath            string
	TLSKeyPath             string
	AdminToken             string
	CleanerPeriod          time.Duration
	PickDeadline           time.Duration
	ReconnectInterval      time.Duration
	CompressThresholdBytes int64
	AdmissionMinInterval   time.Duration
	AdmissionMaxAge        time.Duration
	Logging                LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the runtime configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:                getString("REDUX_ADDR", DefaultAddr),
		AllowedOrigins:         parseList(os.Getenv("REDUX_ALLOWED_ORIGINS")),
		MaxPayloadBytes:        DefaultMaxPayloadBytes,
		PingInterval:           DefaultPingInterval,
		MaxConnections:         DefaultMaxConnections,
		TLSCertPath:            strings.TrimSpace(os.Getenv("REDUX_TLS_CERT")),
		TLSKeyPath:             strings.TrimSpace(os.Getenv("REDUX_TLS_KEY")),
		AdminToken:             strings.TrimSpace(os.Getenv("REDUX_ADMIN_TOKEN")),
		CleanerPeriod:          DefaultCleanerPeriod,
		PickDeadline:           DefaultPickDeadline,
		ReconnectInterval:      DefaultReconnectInterval,
		CompressThresholdBytes: DefaultCompressThresholdBytes,
		AdmissionMinInterval:   DefaultAdmissionMinInterval,
		AdmissionMaxAge:        DefaultAdmissionMaxAge,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("REDUX_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("REDUX_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("REDUX_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_MAX_CONNECTIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_MAX_CONNECTIONS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxConnections = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_CLEANER_PERIOD")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_CLEANER_PERIOD must be a positive duration, got %q", raw))
		} else {
			cfg.CleanerPeriod = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_PICK_DEADLINE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_PICK_DEADLINE must be a positive duration, got %q", raw))
		} else {
			cfg.PickDeadline = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_RECONNECT_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_RECONNECT_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.ReconnectInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_COMPRESS_THRESHOLD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_COMPRESS_THRESHOLD_BYTES must be a non-negative integer, got %q", raw))
		} else {
			cfg.CompressThresholdBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_ADMISSION_MIN_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_ADMISSION_MIN_INTERVAL must be a non-negative duration, got %q", raw))
		} else {
			cfg.AdmissionMinInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_ADMISSION_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_ADMISSION_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.AdmissionMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("REDUX_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("REDUX_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REDUX_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("REDUX_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "REDUX_TLS_CERT and REDUX_TLS_KEY must be provided together")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("REDUX_LOG_LEVEL must be one of debug,info,warn,error,fatal, got %q", cfg.Logging.Level))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
