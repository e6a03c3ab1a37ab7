package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/andres10976/ticketwatch/cmd/ticketwatch/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
