package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/app"
	"github.com/JakeFAU/solar-plant-monitor/internal/id/uuid"
	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/orchestrator"
)

const pushTimeout = 10 * time.Second

// newRunCmd creates the 'run' subcommand, one monitoring pass over every enabled vendor.
func newRunCmd() *cobra.Command {
	var (
		forceMonthly bool
		only         []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitors every enabled vendor once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, forceMonthly, only)
		},
	}
	cmd.Flags().BoolVar(&forceMonthly, "force-monthly", false, "extract monthly figures even when it is not the first day of the month")
	cmd.Flags().StringSliceVar(&only, "vendor", nil, "restrict the run to these vendors")
	return cmd
}

func runMonitor(cmd *cobra.Command, forceMonthly bool, only []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().MustRunID()
	logger := appInstance.GetLogger().With(zap.String("run_id", runID))

	targets, err := appInstance.Targets()
	if err != nil {
		return err
	}
	targets, err = selectTargets(targets, only)
	if err != nil {
		return err
	}
	orch, err := appInstance.Orchestrator(app.RunOptions{RunID: runID, Browser: true, ForceMonthly: forceMonthly})
	if err != nil {
		return err
	}

	sum := orch.Run(ctx, targets)
	printSummary(cmd.OutOrStdout(), sum)

	if url := appInstance.GetConfig().Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, url, appInstance.GetConfig().Metrics.Job, runID); err != nil {
			logger.Warn("metrics push failed", zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	logger.Info("run command finished", zap.Int("failed_vendors", sum.Failed()))
	return nil
}

// selectTargets keeps the targets named in only, in their original order. An
// empty filter keeps everything.
func selectTargets(targets []orchestrator.Target, only []string) ([]orchestrator.Target, error) {
	if len(only) == 0 {
		return targets, nil
	}
	var out []orchestrator.Target
	for _, t := range targets {
		if slices.Contains(only, t.Vendor.Name) {
			out = append(out, t)
		}
	}
	for _, name := range only {
		if !slices.ContainsFunc(out, func(t orchestrator.Target) bool { return t.Vendor.Name == name }) {
			return nil, fmt.Errorf("vendor %q is not enabled", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no vendor selected")
	}
	return out, nil
}

func printSummary(w io.Writer, sum orchestrator.Summary) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("VENDOR", "STATE", "PLANTS OK", "PLANTS FAILED", "ANOMALIES", "DURATION", "ERROR")
	for _, r := range sum.Results {
		ok, failed := r.Counts()
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		table.AddRow(r.Vendor, r.State, ok, failed, r.Anomalies(), r.Duration().Round(time.Second), errText)
	}
	fmt.Fprintln(w, table)
	if sum.ReportPages > 0 {
		fmt.Fprintf(w, "report pages appended: %d\n", sum.ReportPages)
	}
}
