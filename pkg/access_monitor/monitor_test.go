package access_monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/kube_collection"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/roster"
)

func viewerCluster() *fake.Clientset {
	return fake.NewSimpleClientset(
		&rbacv1.ClusterRole{
			ObjectMeta: metav1.ObjectMeta{Name: "viewer"},
			Rules: []rbacv1.PolicyRule{{
				APIGroups: []string{""},
				Resources: []string{"pods"},
				Verbs:     []string{"get", "list"},
			}},
		},
		&rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: "dev-viewers"},
			Subjects:   []rbacv1.Subject{{Kind: rbacv1.GroupKind, Name: "dev"}},
			RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: "viewer"},
		},
	)
}

func newMonitor(t *testing.T, client *fake.Clientset, rosterJSON string, out *bytes.Buffer) *Monitor {
	t.Helper()
	r, err := roster.Parse([]byte(rosterJSON))
	require.NoError(t, err)

	emitter, err := access_logging.NewEmitter(out, "", nil)
	require.NoError(t, err)

	fetcher := kube_collection.NewFetcher(client, kube_collection.FetcherOptions{Timeout: time.Second}, nil)
	resolver := access_resolution.NewResolver(r.GroupsOf, access_resolution.Options{}, nil)
	m := New(fetcher, r, resolver, emitter, nil)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func decodeLines(t *testing.T, out *bytes.Buffer) []access_logging.AccessLogEntry {
	t.Helper()
	var entries []access_logging.AccessLogEntry
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var e access_logging.AccessLogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestCollectOnce_EndToEnd(t *testing.T) {
	var out bytes.Buffer
	m := newMonitor(t, viewerCluster(), `{"data":[{"internals":{"1":{"username":"u1","groups":["dev"]}}}]}`, &out)

	stats, err := m.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{Users: 1, Emitted: 1}, stats)

	entries := decodeLines(t, &out)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].Username)
	assert.Equal(t, []string{"dev"}, entries[0].Groups)
	assert.Equal(t, "2024-05-01T00:00:00.000000Z", entries[0].Timestamp)
	assert.Equal(t, []access_resolution.AccessGrant{{
		Namespace: "",
		IsCluster: true,
		Resources: access_resolution.PermissionSet{"pods": {"get", "list"}},
	}}, entries[0].Accesses)
}

func TestCollectOnce_DegradedFetch(t *testing.T) {
	client := viewerCluster()
	client.PrependReactor("list", "clusterrolebindings", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "clusterrolebindings"}, "", errors.New("denied"))
	})

	var out bytes.Buffer
	m := newMonitor(t, client, `{"data":[{"internals":{
  "1":{"username":"u1","groups":["dev"]},
  "2":{"username":"u2"}
}}]}`, &out)

	stats, err := m.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Emitted)

	entries := decodeLines(t, &out)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotNil(t, e.Accesses)
		assert.Empty(t, e.Accesses)
	}
	assert.Contains(t, out.String(), `"accesses":[]`)
}

func TestCollectOnce_SharedRunTimestamp(t *testing.T) {
	var out bytes.Buffer
	m := newMonitor(t, viewerCluster(), `{"data":[{"internals":{
  "1":{"username":"u1","groups":["dev"]},
  "2":{"username":"u2"},
  "3":{"username":"u3","groups":["dev"]}
}}]}`, &out)

	calls := 0
	m.now = func() time.Time {
		calls++
		return time.Date(2024, 5, 1, 0, 0, calls, 0, time.UTC)
	}

	_, err := m.CollectOnce(context.Background())
	require.NoError(t, err)

	entries := decodeLines(t, &out)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"u1", "u2", "u3"}, []string{entries[0].Username, entries[1].Username, entries[2].Username})
	for _, e := range entries {
		assert.Equal(t, entries[0].Timestamp, e.Timestamp)
	}
}

// cancelAfterFirst cancels the run while the first entry is being emitted
type cancelAfterFirst struct {
	cancel  context.CancelFunc
	entries []access_logging.AccessLogEntry
	ctxErrs []error
}

func (c *cancelAfterFirst) Emit(ctx context.Context, entry access_logging.AccessLogEntry) error {
	c.cancel()
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	c.entries = append(c.entries, entry)
	return nil
}

func TestCollectOnce_StopsBetweenUsersOnCancel(t *testing.T) {
	r, err := roster.Parse([]byte(`{"data":[{"internals":{"1":{"username":"u1"},"2":{"username":"u2"}}}]}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emitter := &cancelAfterFirst{cancel: cancel}

	fetcher := kube_collection.NewFetcher(viewerCluster(), kube_collection.FetcherOptions{Timeout: time.Second}, nil)
	m := New(fetcher, r, access_resolution.NewResolver(r.GroupsOf, access_resolution.Options{}, nil), emitter, nil)

	stats, err := m.CollectOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Emitted)
	require.Len(t, emitter.entries, 1)
	assert.Equal(t, "u1", emitter.entries[0].Username)
	assert.NoError(t, emitter.ctxErrs[0], "in-flight emission is not cancelled")
}

type countingEmitter struct {
	mu    sync.Mutex
	count int
	fail  bool
}

func (c *countingEmitter) Emit(context.Context, access_logging.AccessLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.fail {
		return errors.New("disk full")
	}
	return nil
}

func (c *countingEmitter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestCollectOnce_EmitFailureContinues(t *testing.T) {
	r, err := roster.Parse([]byte(`{"data":[{"internals":{"1":{"username":"u1"},"2":{"username":"u2"}}}]}`))
	require.NoError(t, err)

	emitter := &countingEmitter{fail: true}
	fetcher := kube_collection.NewFetcher(viewerCluster(), kube_collection.FetcherOptions{Timeout: time.Second}, nil)
	m := New(fetcher, r, access_resolution.NewResolver(r.GroupsOf, access_resolution.Options{}, nil), emitter, nil)

	stats, err := m.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{Users: 2, Emitted: 0, Failed: 2}, stats)
	assert.Equal(t, 2, emitter.Count())
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	r, err := roster.Parse([]byte(`{"data":[{"internals":{"1":{"username":"u1"}}}]}`))
	require.NoError(t, err)

	emitter := &countingEmitter{}
	fetcher := kube_collection.NewFetcher(viewerCluster(), kube_collection.FetcherOptions{Timeout: time.Second}, nil)
	m := New(fetcher, r, access_resolution.NewResolver(r.GroupsOf, access_resolution.Options{}, nil), emitter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return emitter.Count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
