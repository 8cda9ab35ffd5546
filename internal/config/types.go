// Package config loads the daemon configuration file (YAML or JSON) and
// watches it for changes.
package config

import (
	"fmt"
	"strings"
	"time"

	"aep/internal/audit"
	"aep/internal/engine"
	"aep/internal/tool/builtin"
	"aep/internal/tool/mcp"
	"aep/pkg/logx"
)

const defaultEventsRoot = "events"

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Events  EventsConfig  `json:"events"`
	Audit   AuditConfig   `json:"audit"`
	Tools   ToolsConfig   `json:"tools"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console *bool      `json:"console"` // nil means enabled
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EventsConfig configures the scheduler. Duration fields are Go duration
// strings ("1s", "250ms"); empty means the engine default.
type EventsConfig struct {
	Root            string `json:"root"`
	Tick            string `json:"tick"`
	DispatchTimeout string `json:"dispatch_timeout"`
	CommandTimeout  string `json:"command_timeout"`
	Watch           bool   `json:"watch"`
}

type AuditConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	HistorySize int    `json:"history_size"`
	BusyTimeout string `json:"busy_timeout"`
}

type ToolsConfig struct {
	Telegram  TelegramConfig     `json:"telegram"`
	Speedtest SpeedtestConfig    `json:"speedtest"`
	MCP       []mcp.ServerConfig `json:"mcp"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// Enabled reports whether the telegram tool has enough config to send.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != "" && t.ChatID != 0
}

type SpeedtestConfig struct {
	Enabled bool `json:"enabled"`
}

// Logx maps the logging section onto the logger's own config.
func (c *Config) Logx() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// EngineConfig parses the events section into an engine.Config.
func (c *Config) EngineConfig() (engine.Config, error) {
	root := strings.TrimSpace(c.Events.Root)
	if root == "" {
		root = defaultEventsRoot
	}
	tick, err := ParseDurationField("events.tick", c.Events.Tick)
	if err != nil {
		return engine.Config{}, err
	}
	dt, err := ParseDurationField("events.dispatch_timeout", c.Events.DispatchTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	ct, err := ParseDurationField("events.command_timeout", c.Events.CommandTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Root:            root,
		Tick:            tick,
		DispatchTimeout: dt,
		CommandTimeout:  ct,
		Watch:           c.Events.Watch,
	}, nil
}

// AuditSink parses the audit section into the sink config.
func (c *Config) AuditSink() (audit.Config, error) {
	bt, err := ParseDurationField("audit.busy_timeout", c.Audit.BusyTimeout)
	if err != nil {
		return audit.Config{}, err
	}
	return audit.Config{
		Driver:      c.Audit.Driver,
		Path:        c.Audit.Path,
		BusyTimeout: bt,
		RingSize:    c.Audit.HistorySize,
	}, nil
}

// TelegramTool maps the telegram section onto the builtin tool config.
func (c *Config) TelegramTool() builtin.TelegramConfig {
	return builtin.TelegramConfig{
		Token:  c.Tools.Telegram.Token,
		ChatID: c.Tools.Telegram.ChatID,
	}
}

// ParseDurationField parses a duration string, rejecting negatives.
// Empty input means zero, leaving the consumer's default in force.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
