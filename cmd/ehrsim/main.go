package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/g960059/ehrsim/internal/cli"
	"github.com/g960059/ehrsim/internal/config"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	socketPath := config.DefaultConfig().SocketPath
	if cfg, err := config.Load(""); err == nil {
		socketPath = cfg.SocketPath
	}
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr, cli.Options{SocketPath: socketPath, Version: version})
	cancel()
	os.Exit(code)
}
