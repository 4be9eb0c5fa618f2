package main

import (
	"fmt"

	"github.com/shiplog/shiplog/pkg/channel"
	"github.com/shiplog/shiplog/pkg/config"
	"github.com/shiplog/shiplog/pkg/source"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, nil
}

func buildSources(cfg *config.Config) (map[string]*source.Source, error) {
	built := make(map[string]*source.Source, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		s, err := config.BuildSource(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errConfig, err)
		}
		built[name] = s
	}
	return built, nil
}

// loadChannel resolves name to its fully built *channel.Channel.
func loadChannel(name string) (*channel.Channel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	sources, err := buildSources(cfg)
	if err != nil {
		return nil, err
	}
	for _, cc := range cfg.Channels {
		if cc.Name != name {
			continue
		}
		ch, err := config.BuildChannel(cc, sources, cfg.StateDir, logger())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errConfig, err)
		}
		return ch, nil
	}
	return nil, fmt.Errorf("%w: unknown channel %s", errConfig, name)
}
