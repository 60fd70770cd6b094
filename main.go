// rexec runs allow-listed programs on a remote host over TCP and
// streams their output back to the caller.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rexec/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rexec: %v\n", err)
		os.Exit(1)
	}
}
