package kube_collection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

const DefaultFetchTimeout = 30 * time.Second

type FetcherOptions struct {
	// Timeout bounds each list call, retries included
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// Fetcher reads the four RBAC collections of a cluster into a Snapshot
type Fetcher struct {
	client kubernetes.Interface
	opts   FetcherOptions
	log    *zap.Logger
}

func NewFetcher(client kubernetes.Interface, opts FetcherOptions, log *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{client: client, opts: opts, log: log}
}

// Fetch lists bindings and roles concurrently. A list that fails after retries is logged
// and replaced by an empty collection, so Fetch always returns a usable snapshot.
func (f *Fetcher) Fetch(ctx context.Context) *access_resolution.Snapshot {
	snapshot := access_resolution.NewSnapshot()

	var (
		crbs         []access_resolution.Binding
		rbs          []access_resolution.Binding
		clusterRoles map[string]access_resolution.Role
		roles        map[string]access_resolution.Role
	)

	var g errgroup.Group
	g.Go(func() error {
		crbs = fetchList(ctx, f, "clusterrolebindings", func(ctx context.Context) ([]access_resolution.Binding, error) {
			return CollectClusterRoleBindings(ctx, f.client, f.log)
		})
		return nil
	})
	g.Go(func() error {
		rbs = fetchList(ctx, f, "rolebindings", func(ctx context.Context) ([]access_resolution.Binding, error) {
			return CollectRoleBindings(ctx, f.client, f.log)
		})
		return nil
	})
	g.Go(func() error {
		clusterRoles = fetchList(ctx, f, "clusterroles", func(ctx context.Context) (map[string]access_resolution.Role, error) {
			return CollectClusterRoles(ctx, f.client)
		})
		return nil
	})
	g.Go(func() error {
		roles = fetchList(ctx, f, "roles", func(ctx context.Context) (map[string]access_resolution.Role, error) {
			return CollectRoles(ctx, f.client)
		})
		return nil
	})
	_ = g.Wait()

	if crbs != nil {
		snapshot.ClusterRoleBindings = crbs
	}
	if rbs != nil {
		snapshot.RoleBindings = rbs
	}
	if clusterRoles != nil {
		snapshot.ClusterRoles = clusterRoles
	}
	if roles != nil {
		snapshot.Roles = roles
	}
	snapshot.FetchedAt = time.Now().UTC()

	f.log.Debug("Fetched RBAC snapshot",
		zap.Int("clusterRoleBindings", len(snapshot.ClusterRoleBindings)),
		zap.Int("roleBindings", len(snapshot.RoleBindings)),
		zap.Int("clusterRoles", len(snapshot.ClusterRoles)),
		zap.Int("roles", len(snapshot.Roles)))

	return snapshot
}

// fetchList runs one list call under the fetch timeout with retries. It returns the zero
// value on failure.
func fetchList[T any](ctx context.Context, f *Fetcher, resource string, list func(context.Context) (T, error)) T {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	var result T
	operation := func() error {
		var err error
		result, err = list(ctx)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.RetryInterval
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		f.log.Warn("Retrying list call",
			zap.String("resource", resource), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, f.opts.MaxRetries), ctx), notify); err != nil {
		f.log.Error("Failed to list resource, continuing with empty collection",
			zap.String("resource", resource), zap.Error(err))
		var zero T
		return zero
	}
	return result
}

func isPermanent(err error) bool {
	return apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err)
}
