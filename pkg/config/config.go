// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package config loads channel/source definitions from an INI or YAML
// configuration tree, the same way the original agent's main config and
// conf.d-style integration sections were read with spf13/viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultStateDir is where tracker and lock files live when not
	// otherwise configured.
	DefaultStateDir = "/var/run/shiplog"
)

// Default technical constants, the Go-native reading of the teacher's own
// business/technical constants split.
const (
	DefaultReadSize      = 64 * 1024
	DefaultBufferSize    = 1 << 20
	DefaultBatchSize     = 100
	DefaultQueueSize     = 1000
	DefaultQueuePoll     = 10 * time.Second
	DefaultThrottleBase  = 30 * time.Second
	DefaultThrottleCap   = 600 * time.Second
	DefaultThrottleRatio = 2.0
)

// SourceConfig is the raw, unresolved configuration for one source section.
type SourceConfig struct {
	Name         string   `mapstructure:"name"`
	Globs        []string `mapstructure:"globs"`
	ExcludeGlobs []string `mapstructure:"exclude_globs"`
	Multiline    bool     `mapstructure:"multiline"`
	Prefix       string   `mapstructure:"prefix"`
	Terminal     string   `mapstructure:"terminal"`
	Pattern      string   `mapstructure:"pattern"`
	Strict       bool     `mapstructure:"strict"`
	ReadSize     int      `mapstructure:"read_size"`
	BufferSize   int      `mapstructure:"buffer_size"`
	Rules        []RuleConfig `mapstructure:"processing_rules"`
}

// RuleConfig mirrors the teacher's LogsProcessingRule shape.
type RuleConfig struct {
	Type               string `mapstructure:"type"`
	Name               string `mapstructure:"name"`
	Pattern            string `mapstructure:"pattern"`
	ReplacePlaceholder string `mapstructure:"replace_placeholder"`
}

// ChannelConfig is the raw, unresolved configuration for one channel
// section.
type ChannelConfig struct {
	Name            string   `mapstructure:"name"`
	Sources         []string `mapstructure:"sources"`
	SinkURL         string   `mapstructure:"sink_url"`
	BatchSize       int      `mapstructure:"batch_size"`
	Strict          bool     `mapstructure:"strict"`
	StrictSlack     int      `mapstructure:"strict_slack"`
	Backfill        bool     `mapstructure:"backfill"`
	Track           bool     `mapstructure:"track"`
	QueueSize       int      `mapstructure:"queue_size"`
	QueuePollSecs   int      `mapstructure:"queue_poll_seconds"`
	FlushFreqSecs   int      `mapstructure:"flush_frequency_seconds"`
	ThrottleBaseSecs int     `mapstructure:"throttle_duration_seconds"`
	ThrottleCapSecs  int     `mapstructure:"throttle_cap_seconds"`
	ThrottleBackoff  float64 `mapstructure:"throttle_backoff"`
}

// Config is the fully parsed configuration tree: the state directory plus
// every source and channel section.
type Config struct {
	StateDir string
	Sources  map[string]SourceConfig
	Channels []ChannelConfig
}

// Load reads path (an INI or YAML file; format is inferred from its
// extension by viper) and returns the parsed Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("state_dir", DefaultStateDir)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		StateDir: v.GetString("state_dir"),
		Sources:  make(map[string]SourceConfig),
	}

	var sources []SourceConfig
	if err := v.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("config: parse sources: %w", err)
	}
	for _, s := range sources {
		if s.Name == "" {
			return nil, fmt.Errorf("config: source missing name")
		}
		cfg.Sources[s.Name] = s
	}

	if err := v.UnmarshalKey("channels", &cfg.Channels); err != nil {
		return nil, fmt.Errorf("config: parse channels: %w", err)
	}
	for _, c := range cfg.Channels {
		if c.Name == "" {
			return nil, fmt.Errorf("config: channel missing name")
		}
		for _, sn := range c.Sources {
			if _, ok := cfg.Sources[sn]; !ok {
				return nil, fmt.Errorf("config: channel %s references unknown source %s", c.Name, sn)
			}
		}
		if c.Backfill && !c.Track {
			return nil, fmt.Errorf("config: channel %s: cannot backfill if track is false", c.Name)
		}
	}

	return cfg, nil
}

// CompilePattern compiles a regex field, wrapping the error with the field
// name for easier diagnosis of a bad config file.
func CompilePattern(field, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("config: compile %s: %w", field, err)
	}
	return re, nil
}

// Hostname returns the configured hostname the way the teacher's config
// fell back to the local host's name when none was set explicitly.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// StateFile joins dir and name the way TrackPath/LockPath do, exposed here
// so CLI commands can report paths before constructing a Channel.
func StateFile(dir, name, ext string) string {
	return filepath.Join(dir, name+ext)
}
