package access_monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/roster"
)

type SnapshotFetcher interface {
	Fetch(ctx context.Context) *access_resolution.Snapshot
}

type EntryEmitter interface {
	Emit(ctx context.Context, entry access_logging.AccessLogEntry) error
}

// Monitor runs fetch-resolve-emit passes over the roster
type Monitor struct {
	fetcher  SnapshotFetcher
	roster   *roster.Roster
	resolver *access_resolution.Resolver
	emitter  EntryEmitter
	log      *zap.Logger
	now      func() time.Time
}

func New(fetcher SnapshotFetcher, r *roster.Roster, resolver *access_resolution.Resolver, emitter EntryEmitter, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		fetcher:  fetcher,
		roster:   r,
		resolver: resolver,
		emitter:  emitter,
		log:      log,
		now:      time.Now,
	}
}

// RunStats summarises one pass
type RunStats struct {
	Users   int
	Emitted int
	Failed  int
}

// CollectOnce fetches a single snapshot and emits one entry per roster user, all stamped
// with the same run time. Cancellation stops the pass between users; the entry being
// emitted is always completed.
func (m *Monitor) CollectOnce(ctx context.Context) (RunStats, error) {
	var stats RunStats

	snapshot := m.fetcher.Fetch(ctx)
	runTime := m.now()

	for _, user := range m.roster.Users() {
		if err := ctx.Err(); err != nil {
			m.log.Info("Collection interrupted", zap.Int("emitted", stats.Emitted), zap.Int("remaining", m.roster.Len()-stats.Users))
			return stats, err
		}
		stats.Users++

		accesses := m.resolver.Resolve(user.Username, snapshot)
		entry := access_logging.NewEntry(user.Username, user.Groups, accesses, runTime)

		if err := m.emitter.Emit(context.WithoutCancel(ctx), entry); err != nil {
			stats.Failed++
			continue
		}
		stats.Emitted++
	}

	m.log.Info("Collection complete",
		zap.Int("users", stats.Users), zap.Int("emitted", stats.Emitted), zap.Int("failed", stats.Failed))
	return stats, nil
}

// Run repeats CollectOnce every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	m.log.Info("Starting continuous collection", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.CollectOnce(ctx); err != nil && ctx.Err() == nil {
			m.log.Error("Collection failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			m.log.Info("Stopping continuous collection")
			return nil
		case <-ticker.C:
		}
	}
}
