package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_monitor"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/auth_handling"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Resolve every roster user's access and emit NDJSON access logs",
	Long: `Fetches one RBAC snapshot, resolves each roster user against it and writes one access
log entry per user to stdout and OUTPUT_FILE. With CONTINUOUS_MODE=true this repeats every
POLL_INTERVAL until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		deps, err := loadClusterDeps(ctx)
		if err != nil {
			return err
		}

		var sinks []access_logging.Sink
		if cfg.DB.Driver != "" {
			db, err := auth_handling.DBConnect(ctx, cfg.DB.Driver, cfg.DB.DSN, log)
			if err != nil {
				return err
			}
			defer db.Close()

			store := access_logging.NewSQLStore(db)
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			sinks = append(sinks, store)
		}

		emitter, err := access_logging.NewEmitter(os.Stdout, cfg.OutputFile, log, sinks...)
		if err != nil {
			return err
		}
		defer emitter.Close()

		monitor := access_monitor.New(deps.fetcher, deps.roster, deps.resolver, emitter, log)

		if cfg.ContinuousMode {
			return monitor.Run(ctx, cfg.PollInterval)
		}

		if _, err := monitor.CollectOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Interrupted, exiting")
				return nil
			}
			return fmt.Errorf("collection failed: %w", err)
		}
		log.Info("Access logs written", zap.String("path", cfg.OutputFile))
		return nil
	},
}
