// Command xfer copies objects between storage endpoints in fixed-size parts,
// committing the destination object only once every part has been
// acknowledged.
//
// Usage:
//
//	xfer [flags] <command> [args]
//
// Commands:
//
//	copy       Copy an object from one endpoint to another
//	plan       Show the part plan for a copy without writing anything
//	sessions   List journaled multipart sessions
//	recover    Abort sessions left open by an interrupted process
//	endpoints  List configured endpoints
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/cmd/xfer/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
