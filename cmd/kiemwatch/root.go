package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/auth_handling"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/config"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/kube_collection"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/logging"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/roster"
)

const banner = `
	 _  _____ ___ __  __        __    _       _
	| |/ /_ _| __|  \/  \ \    / /_ _| |_ ___| |_
	| ' < | || _|| |\/| |\ \/\/ / _' |  _/ _|| ' \
	|_|\_\___|___|_|  |_| \_/\_/\__,_|\__\__||_||_|
`

var (
	configFile string
	cfg        *config.Config
	log        *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kiemwatch",
	Short: "Kubernetes RBAC access auditor",
	Long: banner + `
Resolves the effective RBAC permissions of every user in a roster, emits them as NDJSON
access logs, exports sensitive-access metrics and ships the logs to Elasticsearch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log, err = logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (env variables take precedence)")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(shipCmd)
	rootCmd.AddCommand(graphCmd)
}

// Execute runs the root command and exits 1 on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportFatal(os.Stderr, log, err)
		stop()
		os.Exit(1)
	}
}

// reportFatal logs err through logger, or writes it to w when setup failed before a logger existed
func reportFatal(w io.Writer, logger *zap.Logger, err error) {
	if logger == nil {
		fmt.Fprintln(w, err)
		return
	}
	logger.Error("Fatal error", zap.Error(err))
	_ = logger.Sync()
}

// clusterDeps holds what every cluster-facing command needs
type clusterDeps struct {
	roster   *roster.Roster
	fetcher  *kube_collection.Fetcher
	resolver *access_resolution.Resolver
}

func loadClusterDeps(ctx context.Context) (*clusterDeps, error) {
	r, err := roster.LoadFromFile(cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	log.Info("Loaded roster", zap.String("path", cfg.InputFile), zap.Int("users", r.Len()))

	client, err := auth_handling.KubeConnect(ctx, cfg.Cluster, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	fetcher := kube_collection.NewFetcher(client, kube_collection.FetcherOptions{
		Timeout:    cfg.FetchTimeout,
		MaxRetries: 3,
	}, log)
	resolver := access_resolution.NewResolver(r.GroupsOf, access_resolution.Options{
		LegacyRoleRefLookup: cfg.LegacyRoleRefLookup,
	}, log)

	return &clusterDeps{roster: r, fetcher: fetcher, resolver: resolver}, nil
}
