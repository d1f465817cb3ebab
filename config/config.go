package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ErrorModePass  = "pass"
	ErrorModeCrash = "crash"
)

type Config struct {
	LogLines  int    `yaml:"log_lines"`
	LogsDir   string `yaml:"logs_dir"`
	RecentDir string `yaml:"recent_dir"`

	// Fleet is the default Lua fleet file loaded when no drones are given
	// on the command line.
	Fleet string `yaml:"fleet"`

	QueueCap       int    `yaml:"queue_cap"`
	SendIntervalMs int    `yaml:"send_interval_ms"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	AckTimeoutMs   int    `yaml:"ack_timeout_ms"` // 0 waits forever
	ErrorMode      string `yaml:"error_mode"`
	LegacyDelay    bool   `yaml:"legacy_delay"`
	CapturePort    int    `yaml:"capture_port"`
}

func Default() *Config {
	return &Config{
		LogLines:       1000,
		LogsDir:        "logs",
		RecentDir:      "recent",
		QueueCap:       1024,
		SendIntervalMs: 20,
		PollIntervalMs: 20,
		ErrorMode:      ErrorModePass,
		CapturePort:    8889,
	}
}

// DefaultPaths lists the locations searched when Load is given no path.
func DefaultPaths() []string {
	paths := []string{"dronecmd.yaml", ".dronecmd.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dronecmd", "config.yaml"))
	}
	return paths
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}

		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.LogLines <= 0 {
		c.LogLines = d.LogLines
	}
	if c.LogsDir == "" {
		c.LogsDir = d.LogsDir
	}
	if c.RecentDir == "" {
		c.RecentDir = d.RecentDir
	}
	if c.QueueCap <= 0 {
		c.QueueCap = d.QueueCap
	}
	if c.SendIntervalMs <= 0 {
		c.SendIntervalMs = d.SendIntervalMs
	}
	// Barrier polls must stay at or under 50ms.
	if c.PollIntervalMs <= 0 || c.PollIntervalMs > 50 {
		c.PollIntervalMs = d.PollIntervalMs
	}
	if c.AckTimeoutMs < 0 {
		c.AckTimeoutMs = 0
	}
	if c.ErrorMode != ErrorModeCrash {
		c.ErrorMode = ErrorModePass
	}
	if c.CapturePort <= 0 || c.CapturePort > 65535 {
		c.CapturePort = d.CapturePort
	}
}

func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMs) * time.Millisecond
}
