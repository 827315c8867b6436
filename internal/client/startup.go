package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"keygate/internal/license"
)

// FingerprintFunc yields this machine's fingerprint. Resolution cannot
// fail: the resolver falls back to platform identity when hardware probes
// come up empty.
type FingerprintFunc func() string

// KeyPrompter asks the operator for a license key when the machine holds
// none. Interactive applications read stdin; services can fail immediately
// with NoPrompt.
type KeyPrompter interface {
	PromptKey(ctx context.Context) (string, error)
}

// PromptFunc adapts a function to KeyPrompter.
type PromptFunc func(ctx context.Context) (string, error)

// PromptKey implements KeyPrompter.
func (f PromptFunc) PromptKey(ctx context.Context) (string, error) { return f(ctx) }

// NoPrompt refuses to ask for a key. Non-interactive deployments use it so
// an unlicensed machine denies startup instead of hanging on stdin.
var NoPrompt = PromptFunc(func(context.Context) (string, error) {
	return "", license.NewError(license.KindNotFound, "no license on this machine and no way to prompt for a key")
})

// StdinPrompt reads a license key from in, writing the prompt to out.
func StdinPrompt(in io.Reader, out io.Writer) KeyPrompter {
	reader := bufio.NewReader(in)
	return PromptFunc(func(ctx context.Context) (string, error) {
		fmt.Fprint(out, "Enter license key: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read license key: %w", err)
		}
		return strings.TrimSpace(line), nil
	})
}

// Gate runs the startup license check for an application.
type Gate struct {
	client      *Client
	fingerprint FingerprintFunc
	prompter    KeyPrompter
	logger      *slog.Logger
}

// NewGate builds the startup gate.
func NewGate(c *Client, fingerprint FingerprintFunc, prompter KeyPrompter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if prompter == nil {
		prompter = NoPrompt
	}
	return &Gate{
		client:      c,
		fingerprint: fingerprint,
		prompter:    prompter,
		logger:      logger.With(slog.String("component", "license_gate")),
	}
}

// Check verifies the machine's license and returns the verification result
// when startup may proceed. An unknown machine gets one chance to activate
// a key from the prompter. Every other failure, including the service being
// unreachable, denies startup: no answer means no license.
func (g *Gate) Check(ctx context.Context) (*VerifyResult, error) {
	fp := g.fingerprint()

	res, err := g.client.Verify(ctx, fp)
	if err == nil {
		g.logger.InfoContext(ctx, "license verified",
			slog.String("client_name", res.ClientName),
			slog.Int("days_remaining", res.DaysRemaining),
		)
		return res, nil
	}

	if !license.IsKind(err, license.KindNotFound) {
		return nil, err
	}

	key, err := g.prompter.PromptKey(ctx)
	if err != nil {
		return nil, err
	}

	act, err := g.client.Activate(ctx, key, fp)
	if err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "license activated",
		slog.String("client_name", act.ClientName),
		slog.Bool("already_bound", act.AlreadyBound),
	)

	// Re-verify rather than trusting the activation response: the result
	// carries the authoritative days remaining.
	return g.client.Verify(ctx, fp)
}
