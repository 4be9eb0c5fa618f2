// Command shiplog tails configured log files and ships parsed records to a
// sink, resuming from a durable per-channel offset tracker.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
