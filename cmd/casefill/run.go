package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
)

func newRunCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "run <case-id>",
		Short: "Process one case in the foreground, asking for blank fields on the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, progress.NewConsoleReporter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			defer a.Close()

			prompter := gate.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runCase(ctx, a, prompter, cmd.OutOrStdout(), args[0], resume)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume the newest run of the case instead of starting a new one")
	return cmd
}

// runCase drives caseID until it completes, fails or the operator aborts.
func runCase(ctx context.Context, a *app, p gate.Prompter, out io.Writer, caseID string, resume bool) error {
	var (
		wc  model.WorkflowContext
		err error
	)
	if resume {
		var found store.Lookup
		wc, found, err = a.machine.Latest(ctx, caseID)
		if err != nil {
			return err
		}
		if found != store.Found {
			return fmt.Errorf("no run recorded for case %s", caseID)
		}
		if wc.Phase == model.PhaseFailed {
			if wc, err = a.machine.Reset(ctx, wc); err != nil {
				return err
			}
		}
	}
	if wc.Phase == "" || wc.Phase == model.PhaseInitial {
		if wc, err = a.machine.Start(ctx, caseID); err != nil {
			return err
		}
	}

	for wc.Phase == model.PhaseWaitingForInput {
		answers, err := p.Prompt(ctx, gate.Present(wc.Descriptors))
		if err != nil {
			return err
		}
		next, err := a.machine.Submit(ctx, wc, answers)
		var ve *gate.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintln(out, ve.Error())
			continue
		}
		if err != nil {
			return err
		}
		wc = next
	}

	switch wc.Phase {
	case model.PhaseContinuing:
		if wc, err = a.machine.Continue(ctx, wc); err != nil {
			return err
		}
	case model.PhaseCompleted:
	default:
		return fmt.Errorf("case %s stopped in phase %s", caseID, wc.Phase)
	}
	fmt.Fprintf(out, "case %s %s (namespace %s)\n", wc.CaseID, wc.Phase, wc.Namespace)
	return nil
}
