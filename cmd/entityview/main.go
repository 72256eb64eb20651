package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nikolay-makurin/entityview/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
