package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/app"
)

// newReportCmd creates the 'report' subcommand, which appends today's evidence
// to the monthly report containers without visiting any dashboard.
func newReportCmd() *cobra.Command {
	var (
		ensure bool
		only   []string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Appends the current evidence to the monthly report containers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			targets, err := appInstance.Targets()
			if err != nil {
				return err
			}
			if targets, err = selectTargets(targets, only); err != nil {
				return err
			}
			orch, err := appInstance.Orchestrator(app.RunOptions{})
			if err != nil {
				return err
			}
			now := appInstance.GetClock().Now()
			if ensure {
				created := orch.EnsureContainers(cmd.Context(), targets, now)
				fmt.Fprintf(cmd.OutOrStdout(), "report containers created: %d\n", created)
			}
			pages := orch.AppendReports(cmd.Context(), targets, now)
			fmt.Fprintf(cmd.OutOrStdout(), "report pages appended: %d\n", pages)
			appInstance.GetLogger().Info("report command finished", zap.Int("pages", pages))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ensure, "ensure", false, "create missing containers for the current month first")
	cmd.Flags().StringSliceVar(&only, "vendor", nil, "restrict to these vendors")
	return cmd
}
