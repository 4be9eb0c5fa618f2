// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testConfigYAML = `
state_dir: /var/run/shiplog
sources:
  - name: access
    globs:
      - /var/log/access.log
    pattern: "(?P<msg>.*)"
channels:
  - name: access-channel
    sources: ["access"]
    batch_size: 50
    track: true
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shiplog.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))
	return path
}

func TestLoadParsesSourcesAndChannels(t *testing.T) {
	cfg, err := Load(writeTestConfig(t))
	assert.NoError(t, err)
	assert.Equal(t, "/var/run/shiplog", cfg.StateDir)
	assert.Len(t, cfg.Sources, 1)
	assert.Contains(t, cfg.Sources, "access")
	assert.Len(t, cfg.Channels, 1)
	assert.Equal(t, "access-channel", cfg.Channels[0].Name)
	assert.Equal(t, 50, cfg.Channels[0].BatchSize)
}

func TestLoadRejectsUnknownSourceReference(t *testing.T) {
	bad := `
sources:
  - name: access
    globs: ["/var/log/access.log"]
channels:
  - name: c
    sources: ["missing"]
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildSourceCompilesPatterns(t *testing.T) {
	s, err := BuildSource(SourceConfig{Name: "x", Pattern: `(?P<msg>.*)`})
	assert.NoError(t, err)
	assert.NotNil(t, s.Pattern)
}

func TestBuildSourceRejectsMultilineWithoutPrefix(t *testing.T) {
	_, err := BuildSource(SourceConfig{Name: "x", Multiline: true})
	assert.Error(t, err)
}

func TestLoadRejectsBackfillWithoutTrack(t *testing.T) {
	bad := `
sources:
  - name: access
    globs: ["/var/log/access.log"]
channels:
  - name: c
    sources: ["access"]
    backfill: true
    track: false
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildChannelRejectsBackfillWithoutTrack(t *testing.T) {
	_, err := BuildChannel(ChannelConfig{Name: "c", Backfill: true, Track: false}, nil, t.TempDir(), nil)
	assert.Error(t, err)
}
