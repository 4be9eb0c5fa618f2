package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <channel> <path>",
		Short: "consume a single file once to end of stream and exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := loadChannel(args[0])
			if err != nil {
				return err
			}
			defer ch.Tracker.Close()

			unlock, err := ch.Lock(defaultLockTimeout)
			if err != nil {
				return err
			}
			defer unlock()

			stats, err := ch.NewConsumer().Consume(args[1], nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s: consumed %d blocks (%d bytes, %d errors) from %s\n", ch.Name, stats.Count, stats.Bytes, stats.Errors, args[1])
			return nil
		},
	}
}
