// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/orchestrator"
)

const rule = "=================================================="

func runConversation(cmd *cobra.Command, v *viper.Viper, cfg *config.Config, logger *zap.Logger, deps dependencies) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(deps.stdin)

	creds, err := newCredentialResolver(v, deps, in, out).Resolve()
	if err != nil {
		return err
	}

	initial := v.GetString("prompt")
	if strings.TrimSpace(initial) == "" {
		if initial, err = ask(in, out, "Enter your initial prompt: "); err != nil {
			return fmt.Errorf("failed to read initial prompt: %w", err)
		}
	}
	prompts := newPromptSequence(initial, v.GetString("reply"), in, out)

	logger.Info("Running browser.", zap.Bool("headless", cfg.Browser().Headless))
	runner, err := deps.newRunner(cfg, logger, printReply(out, prompts.isReply))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	report, err := runner.Run(ctx, creds, prompts.Next)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		logger.Info("Run interrupted by user.")
		fmt.Fprintln(out, "\nInterrupted. Cleaning up...")
		return nil
	case errors.Is(err, orchestrator.ErrAuthenticationFailed):
		logger.Error("Login failed, cannot proceed.", zap.Error(err))
		return fmt.Errorf("failed to log in, check your credentials and try again: %w", err)
	default:
		return err
	}

	for i, ex := range report.Exchanges {
		if !ex.Result.OK {
			fmt.Fprintf(out, "\nNo response received for %s: %s\n", exchangeTitle(i > 0), ex.Result.Reason)
		}
	}
	if report.ExportErr != nil {
		fmt.Fprintf(out, "\nFailed to export conversation: %v\n", report.ExportErr)
	}
	if report.TranscriptPath != "" {
		fmt.Fprintf(out, "\nConversation exported to %s\n", report.TranscriptPath)
	}
	if report.Stored {
		fmt.Fprintf(out, "Transcript stored for session %s\n", report.SessionID)
	}
	return nil
}

// printReply shows each response between horizontal rules.
func printReply(out io.Writer, isReply func() bool) func(orchestrator.ExchangeOutcome) {
	return func(ex orchestrator.ExchangeOutcome) {
		fmt.Fprintf(out, "\nResponse to %s:\n%s\n%s\n%s\n", exchangeTitle(isReply()), rule, ex.Result.Text, rule)
	}
}

func exchangeTitle(reply bool) string {
	if reply {
		return "Reply"
	}
	return "Initial Prompt"
}
