package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/venueops/entitycache/cmd/venuecache/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
