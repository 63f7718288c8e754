package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/forecast-accuracy/internal/cli"
	"github.com/i474232898/forecast-accuracy/internal/logger"
)

func main() {
	// An interrupted evaluation still saves what it scored.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.GetLogger().Errorw("Command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
