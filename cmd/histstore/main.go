package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vjranagit/histextract/internal/app"
)

func main() {
	// Interrupts cancel a running import or export
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := app.Store(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
