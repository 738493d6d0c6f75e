// Command vecstore inspects and maintains vecstore collections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vecstore: %v\n", err)
		stop()
		os.Exit(1)
	}
}
