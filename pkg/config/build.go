package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shiplog/shiplog/pkg/channel"
	"github.com/shiplog/shiplog/pkg/sink"
	"github.com/shiplog/shiplog/pkg/sink/httpsink"
	"github.com/shiplog/shiplog/pkg/source"
	"github.com/shiplog/shiplog/pkg/throttle"
	"github.com/shiplog/shiplog/pkg/tracker"
	"github.com/shiplog/shiplog/pkg/tracker/memtracker"
	"github.com/shiplog/shiplog/pkg/tracker/sqlitetracker"
)

// BuildSource compiles a SourceConfig into a *source.Source.
func BuildSource(sc SourceConfig) (*source.Source, error) {
	pattern, err := CompilePattern(sc.Name+".pattern", sc.Pattern)
	if err != nil {
		return nil, err
	}
	prefix, err := CompilePattern(sc.Name+".prefix", sc.Prefix)
	if err != nil {
		return nil, err
	}
	if sc.Multiline && prefix == nil {
		return nil, fmt.Errorf("config: source %s is multiline but has no prefix", sc.Name)
	}

	rules := make([]source.ProcessingRule, 0, len(sc.Rules))
	for _, r := range sc.Rules {
		reg, err := CompilePattern(sc.Name+".processing_rules", r.Pattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, source.ProcessingRule{
			Type:                    r.Type,
			Name:                    r.Name,
			Pattern:                 r.Pattern,
			Reg:                     reg,
			ReplacePlaceholder:      r.ReplacePlaceholder,
			ReplacePlaceholderBytes: []byte(r.ReplacePlaceholder),
		})
	}

	readSize := sc.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	bufSize := sc.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &source.Source{
		Name:         sc.Name,
		Globs:        sc.Globs,
		ExcludeGlobs: sc.ExcludeGlobs,
		Multiline:    sc.Multiline,
		Prefix:       prefix,
		Terminal:     sc.Terminal,
		Pattern:      pattern,
		Rules:        rules,
		Strict:       sc.Strict,
		ReadSize:     readSize,
		BufferSize:   bufSize,
	}, nil
}

// BuildChannel compiles a ChannelConfig (plus the already-built sources it
// references and the resolved state directory) into a *channel.Channel
// ready to drive a worker.
func BuildChannel(cc ChannelConfig, sources map[string]*source.Source, stateDir string, logger *slog.Logger) (*channel.Channel, error) {
	if cc.Backfill && !cc.Track {
		return nil, fmt.Errorf("config: channel %s: cannot backfill if track is false", cc.Name)
	}

	var chSources []*source.Source
	for _, name := range cc.Sources {
		s, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("config: channel %s references unknown source %s", cc.Name, name)
		}
		chSources = append(chSources, s)
	}

	var trk tracker.Tracker
	var err error
	if cc.Track {
		trk, err = sqlitetracker.Open(channel.TrackPath(stateDir, cc.Name))
	} else {
		trk = memtracker.New()
	}
	if err != nil {
		return nil, fmt.Errorf("config: channel %s: open tracker: %w", cc.Name, err)
	}

	var sk sink.Sink
	if cc.SinkURL != "" {
		sk = httpsink.New(cc.SinkURL, valueOr(cc.BatchSize, DefaultBatchSize), logger)
	}

	th := throttle.New(
		secondsOr(cc.ThrottleBaseSecs, DefaultThrottleBase),
		floatOr(cc.ThrottleBackoff, DefaultThrottleRatio),
		secondsOr(cc.ThrottleCapSecs, DefaultThrottleCap),
	)

	return &channel.Channel{
		Name:           cc.Name,
		Sources:        chSources,
		Sink:           sk,
		Tracker:        trk,
		Logger:         logger,
		StateDir:       stateDir,
		LockFile:       channel.LockPath(stateDir, cc.Name),
		BatchSize:      valueOr(cc.BatchSize, DefaultBatchSize),
		Strict:         cc.Strict,
		StrictSlack:    cc.StrictSlack,
		Backfill:       cc.Backfill,
		Track:          cc.Track,
		FlushFrequency: secondsOr(cc.FlushFreqSecs, 0),
		Throttle:       th,
	}, nil
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func floatOr(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
