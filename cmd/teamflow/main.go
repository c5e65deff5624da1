package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tgienger/teamflow/internal/cli"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &cli.Runner{
		Getenv:  os.Getenv,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
	code := r.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
