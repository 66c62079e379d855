// Command sfmrunner runs a structure-from-motion reconstruction over a
// dataset directory by driving the reconstruction tool step by step.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/backmassage/sfmrunner/internal/cli"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	// SIGINT/SIGTERM cancel the context, which kills the running tool; the
	// pipeline then stops with a failure.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Options{Version: version, Commit: commit})
	stop()
	os.Exit(code)
}
