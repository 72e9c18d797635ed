package main

import (
	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/metrics_export"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve sensitive-access metrics on /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		deps, err := loadClusterDeps(ctx)
		if err != nil {
			return err
		}

		collector := metrics_export.NewSensitiveAccessCollector(
			deps.fetcher,
			deps.roster.Usernames(),
			deps.resolver,
			cfg.Sensitivity,
			cfg.FetchTimeout,
			log,
		)
		registry, err := metrics_export.NewRegistry(collector)
		if err != nil {
			return err
		}

		return metrics_export.Serve(ctx, cfg.MetricsPort, metrics_export.NewRouter(registry), log)
	},
}
