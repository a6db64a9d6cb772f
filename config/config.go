// Package config loads the bridge's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Command    CommandConfig    `yaml:"command"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Web        WebConfig        `yaml:"web"`
	MCP        MCPConfig        `yaml:"mcp"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
	Presenter  string           `yaml:"presenter"`
}

type EngineConfig struct {
	Transport     string          `yaml:"transport"`
	Host          string          `yaml:"host"`
	PubPort       int             `yaml:"pub_port"`
	CmdPort       int             `yaml:"cmd_port"`
	NATSURL       string          `yaml:"nats_url"`
	SubjectPrefix string          `yaml:"subject_prefix"`
	Discovery     DiscoveryConfig `yaml:"discovery"`
}

type DiscoveryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	PubService string        `yaml:"pub_service"`
	CmdService string        `yaml:"cmd_service"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CommandConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SubscriberConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	StopGrace    time.Duration `yaml:"stop_grace"`
}

type WebConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	MaxSessions int    `yaml:"max_sessions"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	TransportZMQ  = "zmq"
	TransportNATS = "nats"

	PresenterConsole = "console"
	PresenterWeb     = "web"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Web:     WebConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Transport == "" {
		c.Engine.Transport = TransportZMQ
	}
	if c.Engine.Host == "" {
		c.Engine.Host = "localhost"
	}
	if c.Engine.PubPort == 0 {
		c.Engine.PubPort = 12345
	}
	if c.Engine.CmdPort == 0 {
		c.Engine.CmdPort = 12340
	}
	if c.Engine.NATSURL == "" {
		c.Engine.NATSURL = "nats://localhost:4222"
	}
	if c.Engine.SubjectPrefix == "" {
		c.Engine.SubjectPrefix = "simengine"
	}
	if c.Engine.Discovery.PubService == "" {
		c.Engine.Discovery.PubService = "_simengine-pub._tcp"
	}
	if c.Engine.Discovery.CmdService == "" {
		c.Engine.Discovery.CmdService = "_simengine-cmd._tcp"
	}
	if c.Engine.Discovery.Timeout == 0 {
		c.Engine.Discovery.Timeout = 5 * time.Second
	}
	if c.Command.Timeout == 0 {
		c.Command.Timeout = 2000 * time.Millisecond
	}
	if c.Subscriber.PollInterval == 0 {
		c.Subscriber.PollInterval = time.Second
	}
	if c.Subscriber.StopGrace == 0 {
		c.Subscriber.StopGrace = 2 * time.Second
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
	if c.Web.MaxSessions == 0 {
		c.Web.MaxSessions = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Presenter == "" {
		c.Presenter = PresenterConsole
	}
}

func (c *Config) validate() error {
	switch c.Engine.Transport {
	case TransportZMQ, TransportNATS:
	default:
		return fmt.Errorf("engine.transport must be %q or %q, got %q", TransportZMQ, TransportNATS, c.Engine.Transport)
	}
	if c.Engine.PubPort < 0 || c.Engine.PubPort > 65535 {
		return fmt.Errorf("engine.pub_port out of range: %d", c.Engine.PubPort)
	}
	if c.Engine.CmdPort < 0 || c.Engine.CmdPort > 65535 {
		return fmt.Errorf("engine.cmd_port out of range: %d", c.Engine.CmdPort)
	}
	if c.Command.Timeout < 0 {
		return fmt.Errorf("command.timeout must be positive")
	}
	if c.Subscriber.PollInterval < 0 || c.Subscriber.StopGrace < 0 {
		return fmt.Errorf("subscriber durations must be positive")
	}
	if c.Web.MaxSessions < 0 {
		return fmt.Errorf("web.max_sessions must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Presenter {
	case PresenterConsole, PresenterWeb:
	default:
		return fmt.Errorf("presenter must be %q or %q, got %q", PresenterConsole, PresenterWeb, c.Presenter)
	}
	if c.Presenter == PresenterWeb && !c.Web.Enabled {
		return fmt.Errorf("presenter %q requires web.enabled", PresenterWeb)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}
}
