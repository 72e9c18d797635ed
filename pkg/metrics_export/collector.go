package metrics_export

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

const (
	namespaceMetric = "k8s_namespace_sensitive_access_users_count"
	clusterMetric   = "k8s_cluster_wide_sensitive_access_users_count"
)

type SnapshotFetcher interface {
	Fetch(ctx context.Context) *access_resolution.Snapshot
}

// SensitiveAccessCollector recomputes the sensitive-access gauges from a fresh snapshot on
// every scrape
type SensitiveAccessCollector struct {
	fetcher     SnapshotFetcher
	usernames   []string
	resolver    *access_resolution.Resolver
	sensitivity access_resolution.Sensitivity
	timeout     time.Duration
	log         *zap.Logger

	namespaceDesc *prometheus.Desc
	clusterDesc   *prometheus.Desc
}

func NewSensitiveAccessCollector(
	fetcher SnapshotFetcher,
	usernames []string,
	resolver *access_resolution.Resolver,
	sensitivity access_resolution.Sensitivity,
	timeout time.Duration,
	log *zap.Logger,
) *SensitiveAccessCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &SensitiveAccessCollector{
		fetcher:     fetcher,
		usernames:   usernames,
		resolver:    resolver,
		sensitivity: sensitivity,
		timeout:     timeout,
		log:         log,
		// the exposition sorts labels by name, so series render as {namespace,resource,verb}
		namespaceDesc: prometheus.NewDesc(namespaceMetric,
			"Number of users with access to sensitive resources in sensitive namespaces",
			[]string{"namespace", "verb", "resource"}, nil),
		clusterDesc: prometheus.NewDesc(clusterMetric,
			"Number of users with cluster-wide access to sensitive resources",
			[]string{"resource", "verb"}, nil),
	}
}

func (c *SensitiveAccessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.namespaceDesc
	ch <- c.clusterDesc
}

func (c *SensitiveAccessCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	snapshot := c.fetcher.Fetch(ctx)
	access := c.resolver.Aggregate(c.usernames, snapshot, c.sensitivity)

	namespaced := access.NamespaceCounts()
	for _, count := range namespaced {
		ch <- prometheus.MustNewConstMetric(c.namespaceDesc, prometheus.GaugeValue, float64(count.Users),
			count.Namespace, count.Verb, count.Resource)
	}
	clusterWide := access.ClusterCounts()
	for _, count := range clusterWide {
		ch <- prometheus.MustNewConstMetric(c.clusterDesc, prometheus.GaugeValue, float64(count.Users),
			count.Resource, count.Verb)
	}

	c.log.Debug("Collected sensitive access metrics",
		zap.Int("namespaced", len(namespaced)), zap.Int("clusterWide", len(clusterWide)))
}
