package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiplog/shiplog/pkg/channel"
)

// Exit codes, per the channel lock/config contract.
const (
	exitOK            = 0
	exitOtherFailure  = 1
	exitConfigError   = 2
	exitLockContention = 3
)

var configPath string

func run(args []string) int {
	root := &cobra.Command{
		Use:           "shiplog",
		Short:         "tail log files and ship parsed records to a sink",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "shiplog.yaml", "path to the channel/source configuration file")

	root.AddCommand(newTouchCmd())
	root.AddCommand(newTellCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newConsumeCmd())
	root.AddCommand(newWatchCmd())

	root.SetArgs(args)
	err := root.Execute()
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "shiplog:", err)
	switch {
	case errors.Is(err, errConfig):
		return exitConfigError
	case errors.Is(err, channel.ErrLockTimeout):
		return exitLockContention
	default:
		return exitOtherFailure
	}
}

var errConfig = errors.New("configuration error")

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
