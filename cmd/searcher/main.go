package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev" // is set during build process

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
