package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <channel> <path>",
		Short: "record the current end-of-file offset for path without consuming it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := loadChannel(args[0])
			if err != nil {
				return err
			}
			defer ch.Tracker.Close()

			unlock, err := ch.Lock(5 * defaultLockTimeout)
			if err != nil {
				return err
			}
			defer unlock()

			size, err := fileSize(args[1])
			if err != nil {
				return err
			}
			if err := ch.Tracker.Set(args[1], size); err != nil {
				return err
			}
			fmt.Printf("%s: set %s to offset %d\n", ch.Name, args[1], size)
			return nil
		},
	}
}
