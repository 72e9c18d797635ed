package main

import (
	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/log_shipping"
)

var shipCmd = &cobra.Command{
	Use:   "ship",
	Short: "Ship new access log lines to Elasticsearch",
	Long: `Indexes every access log line not yet recorded in the .processed marker next to
OUTPUT_FILE. Without ELASTICSEARCH_URL documents are only logged. With SHIP_CONTINUOUS=true
(the default) it keeps running, waking every SHIP_INTERVAL and whenever the log is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var indexer log_shipping.Indexer
		if cfg.Elasticsearch.URL != "" {
			es, err := log_shipping.NewElasticsearchIndexer(cfg.Elasticsearch.URL, cfg.Elasticsearch.Index, log_shipping.ElasticsearchOptions{}, log)
			if err != nil {
				return err
			}
			indexer = es
		} else {
			log.Warn("ELASTICSEARCH_URL not set, documents will only be logged")
			indexer = log_shipping.NewLogIndexer(log)
		}

		shipper := log_shipping.NewShipper(cfg.OutputFile, indexer, log)
		if cfg.ShipContinuous {
			return shipper.Run(ctx, cfg.ShipInterval)
		}
		_, err := shipper.ProcessOnce(ctx)
		return err
	},
}
