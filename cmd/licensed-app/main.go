// Command licensed-app is a minimal example of software gated by the
// license service: it resolves the machine fingerprint, runs the startup
// check, and only then does its work.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"keygate/internal/client"
	"keygate/internal/fingerprint"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	serviceURL := os.Getenv("KEYGATE_URL")
	if serviceURL == "" {
		serviceURL = "http://localhost:8080"
	}

	resolver := fingerprint.NewResolver(logger)
	gate := client.NewGate(
		client.New(serviceURL, client.WithLogger(logger)),
		resolver.Resolve,
		client.StdinPrompt(os.Stdin, os.Stdout),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := gate.Check(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "license check failed:", err)
		os.Exit(1)
	}

	fmt.Printf("Licensed to %s, %d day(s) remaining (expires %s)\n",
		res.ClientName, res.DaysRemaining, res.ExpirationDate)

	// Application work would start here.
}
