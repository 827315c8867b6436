package main

import (
	"context"
	"log/slog"
	"os"

	"keygate/internal/app"
)

func main() {
	ctx := context.Background()

	application, err := app.NewApplication(ctx)
	if err != nil {
		slog.Error("failed to initialize license service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("license service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
