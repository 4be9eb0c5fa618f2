package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "reset <channel> [path]",
		Short: "clear the tracked offset for one path, or every path under a prefix",
		Args:  cobra.RangeArgs(1, 2),
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

			switch {
			case len(args) == 2:
				if err := ch.Tracker.Delete(args[1]); err != nil {
					return err
				}
				fmt.Printf("%s: reset %s\n", ch.Name, args[1])
			case prefix != "":
				if err := ch.Tracker.DeletePrefix(prefix); err != nil {
					return err
				}
				fmt.Printf("%s: reset every path under %s\n", ch.Name, prefix)
			default:
				return fmt.Errorf("reset requires a path argument or --prefix")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "reset every tracked path under this prefix")
	return cmd
}
