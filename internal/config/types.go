package config

import (
	"fmt"
	"time"

	"webtexter/internal/alias"
	"webtexter/internal/history"
	"webtexter/internal/send"
	logx "webtexter/pkg/logx"
)

// Config is the on-disk configuration. Structured files (.yaml/.yml/.json)
// decode strictly; anything else is treated as the legacy line format.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Carrier  string `json:"carrier"`
	NoSplit  bool   `json:"nosplit"`

	// Aliases maps a name to numbers and/or other alias names; references
	// are expanded (with cycle detection) when the table is built.
	Aliases map[string][]string `json:"aliases"`

	Send    SendConfig    `json:"send"`
	Log     LogConfig     `json:"log"`
	History HistoryConfig `json:"history"`

	// CookieFile persists carrier session cookies between runs.
	CookieFile string `json:"cookie_file"`
}

type SendConfig struct {
	Workers    int    `json:"workers"`
	RatePerSec int    `json:"rate_per_sec"`
	Timeout    string `json:"timeout"`
}

type LogConfig struct {
	Level string        `json:"level"`
	File  LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// Table expands alias references into a flat lookup table.
func (c *Config) Table() (alias.Table, error) {
	return expandAliases(c.Aliases)
}

// SendSettings converts the send section into orchestrator config.
func (c *Config) SendSettings() (send.Config, error) {
	timeout, err := ParseDurationOrDefault("send.timeout", c.Send.Timeout, 30*time.Second)
	if err != nil {
		return send.Config{}, err
	}
	return send.Config{
		Workers:    c.Send.Workers,
		RatePerSec: c.Send.RatePerSec,
		Timeout:    timeout,
		CookiePath: c.CookieFile,
	}, nil
}

// LogSettings converts the log section for logx, honoring a verbosity
// bump from the command line.
func (c *Config) LogSettings(verbosity int) logx.Config {
	level := c.Log.Level
	switch {
	case verbosity >= 2:
		level = "trace"
	case verbosity == 1:
		level = "debug"
	case level == "":
		level = "warn"
	}
	return logx.Config{
		Level:   level,
		Console: true,
		File: logx.FileConfig{
			Enabled:    c.Log.File.Enabled,
			Path:       c.Log.File.Path,
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxBackups: c.Log.File.MaxBackups,
			MaxAgeDays: c.Log.File.MaxAgeDays,
		},
	}
}

// HistorySettings converts the history section for the store.
func (c *Config) HistorySettings() (history.Config, error) {
	busy, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Driver:      c.History.Driver,
		Path:        c.History.Path,
		BusyTimeout: busy,
	}, nil
}

// expandAliases flattens alias-to-alias references into numbers, preserving
// the stored order of each entry's values.
func expandAliases(raw map[string][]string) (alias.Table, error) {
	table := make(alias.Table, len(raw))
	var expand func(name string, trail []string) ([]string, error)
	expand = func(name string, trail []string) ([]string, error) {
		if done, ok := table[name]; ok {
			return done, nil
		}
		for _, seen := range trail {
			if seen == name {
				return nil, fmt.Errorf("alias %q references itself (via %v)", name, trail)
			}
		}
		values, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("alias %q references undefined alias or invalid number", name)
		}
		var nums []string
		for _, v := range values {
			if alias.IsNumber(v) {
				nums = append(nums, alias.CleanNumber(v))
				continue
			}
			expanded, err := expand(v, append(trail, name))
			if err != nil {
				return nil, err
			}
			nums = append(nums, expanded...)
		}
		table[name] = nums
		return nums, nil
	}

	for name := range raw {
		if _, err := expand(name, nil); err != nil {
			return nil, err
		}
	}
	return table, nil
}
