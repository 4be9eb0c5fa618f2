package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const defaultLockTimeout = time.Second

func newTellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tell <channel> [path]",
		Short: "print the tracked offset for one path, or every tracked path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := loadChannel(args[0])
			if err != nil {
				return err
			}
			defer ch.Tracker.Close()

			if len(args) == 2 {
				off, ok := ch.Tracker.Get(args[1])
				if !ok {
					fmt.Printf("%s: %s is not tracked\n", ch.Name, args[1])
					return nil
				}
				fmt.Printf("%s: %s -> %d\n", ch.Name, args[1], off)
				return nil
			}

			return ch.Tracker.Each(func(path string, offset int64) bool {
				fmt.Printf("%s: %s -> %d\n", ch.Name, path, offset)
				return true
			})
		},
	}
}

func fileSize(path string) (int64, error) {
	fi, err := statFile(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
