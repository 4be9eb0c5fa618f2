package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiplog/shiplog/pkg/channel"
	"github.com/shiplog/shiplog/pkg/config"
	"github.com/shiplog/shiplog/pkg/watch"
	"github.com/shiplog/shiplog/pkg/worker"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "run every configured channel as a long-lived worker, watching for file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources, err := buildSources(cfg)
			if err != nil {
				return err
			}

			log := logger()
			var channels []*channel.Channel
			var unlocks []func() error
			for _, cc := range cfg.Channels {
				ch, err := config.BuildChannel(cc, sources, cfg.StateDir, log)
				if err != nil {
					return fmt.Errorf("%w: %v", errConfig, err)
				}
				unlock, err := ch.Lock(defaultLockTimeout)
				if err != nil {
					return err
				}
				unlocks = append(unlocks, unlock)
				channels = append(channels, ch)
			}
			defer func() {
				for _, u := range unlocks {
					u()
				}
			}()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
				cancel()
			}()

			var dirs []string
			var routes []watch.Route
			var wg sync.WaitGroup
			for _, ch := range channels {
				w := worker.New(ch, config.DefaultQueueSize, 10*time.Second, log)
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.Run(ctx)
				}()

				var globs []string
				for _, s := range ch.Sources {
					globs = append(globs, s.Globs...)
				}
				dirs = append(dirs, watch.WatchDirs(globs)...)

				ch := ch
				routes = append(routes, watch.Route{
					Match:  func(path string) bool { _, ok := ch.Match(path); return ok },
					Submit: w.Submit,
				})
			}

			watcher, err := watch.New(dirs, routes, log)
			if err != nil {
				return fmt.Errorf("shiplog: start watcher: %w", err)
			}
			watcher.Run(ctx)
			// each worker finishes its in-flight Consume and flushes before
			// the locks are released.
			wg.Wait()
			return nil
		},
	}
}
