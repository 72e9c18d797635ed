package access_resolution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

func secretsSnapshot() *access_resolution.Snapshot {
	snap := access_resolution.NewSnapshot()
	snap.Roles["kube-system/secret-reader"] = access_resolution.Role{
		Name:      "secret-reader",
		Namespace: "kube-system",
		Rules:     []access_resolution.PolicyRule{{Resources: []string{"secrets", "configmaps"}, Verbs: []string{"get"}}},
	}
	snap.Roles["kube-system/secret-getter"] = access_resolution.Role{
		Name:      "secret-getter",
		Namespace: "kube-system",
		Rules:     []access_resolution.PolicyRule{{Resources: []string{"secrets"}, Verbs: []string{"get"}}},
	}
	snap.RoleBindings = []access_resolution.Binding{
		{
			Kind:      access_resolution.KindRoleBinding,
			Name:      "bob-direct",
			Namespace: "kube-system",
			Subjects:  []access_resolution.Subject{{Kind: access_resolution.SubjectUser, Name: "bob"}},
			RoleRef:   access_resolution.RoleRef{Kind: access_resolution.KindRole, Name: "secret-reader"},
		},
		{
			Kind:      access_resolution.KindRoleBinding,
			Name:      "ops-group",
			Namespace: "kube-system",
			Subjects:  []access_resolution.Subject{{Kind: access_resolution.SubjectGroup, Name: "ops"}},
			RoleRef:   access_resolution.RoleRef{Kind: access_resolution.KindRole, Name: "secret-getter"},
		},
	}
	return snap
}

func TestAggregate_CountsUserOnce(t *testing.T) {
	r := access_resolution.NewResolver(groups(map[string][]string{"bob": {"ops"}}), access_resolution.Options{}, nil)

	result := r.Aggregate([]string{"bob"}, secretsSnapshot(), access_resolution.DefaultSensitivity())

	key := access_resolution.NamespaceAccessKey{Namespace: "kube-system", Verb: "get", Resource: "secrets"}
	require.Contains(t, result.Namespaced, key)
	assert.Len(t, result.Namespaced[key], 1)
	assert.Empty(t, result.ClusterWide)

	// configmaps are not sensitive
	assert.NotContains(t, result.Namespaced, access_resolution.NamespaceAccessKey{Namespace: "kube-system", Verb: "get", Resource: "configmaps"})
}

func TestAggregate_ClusterWideAttributedToWatchedNamespaces(t *testing.T) {
	snap := access_resolution.NewSnapshot()
	snap.ClusterRoles["node-viewer"] = access_resolution.Role{
		Name:  "node-viewer",
		Rules: []access_resolution.PolicyRule{{Resources: []string{"nodes"}, Verbs: []string{"list"}}},
	}
	snap.ClusterRoleBindings = []access_resolution.Binding{{
		Kind:     access_resolution.KindClusterRoleBinding,
		Name:     "node-viewers",
		Subjects: []access_resolution.Subject{{Kind: access_resolution.SubjectUser, Name: "alice"}, {Kind: access_resolution.SubjectUser, Name: "carol"}},
		RoleRef:  access_resolution.RoleRef{Kind: access_resolution.KindClusterRole, Name: "node-viewer"},
	}}
	r := access_resolution.NewResolver(groups(nil), access_resolution.Options{}, nil)

	result := r.Aggregate([]string{"alice", "carol", "dave"}, snap, access_resolution.DefaultSensitivity())

	clusterCounts := result.ClusterCounts()
	require.Len(t, clusterCounts, 1)
	assert.Equal(t, access_resolution.ClusterAccessKey{Verb: "list", Resource: "nodes"}, clusterCounts[0].ClusterAccessKey)
	assert.Equal(t, 2, clusterCounts[0].Users)

	nsCounts := result.NamespaceCounts()
	require.Len(t, nsCounts, 2)
	assert.Equal(t, "default", nsCounts[0].Namespace)
	assert.Equal(t, "kube-system", nsCounts[1].Namespace)
	for _, c := range nsCounts {
		assert.Equal(t, 2, c.Users)
	}
}

func TestAggregate_IgnoresUnwatchedNamespaces(t *testing.T) {
	snap := secretsSnapshot()
	r := access_resolution.NewResolver(groups(nil), access_resolution.Options{}, nil)

	result := r.Aggregate([]string{"bob"}, snap, access_resolution.Sensitivity{
		Namespaces: []string{"default"},
		Resources:  []string{"secrets"},
	})

	assert.Empty(t, result.Namespaced)
}

func TestAggregate_SkipsClusterBindingWithRoleKind(t *testing.T) {
	snap := access_resolution.NewSnapshot()
	snap.ClusterRoles["pods-all"] = access_resolution.Role{
		Name:  "pods-all",
		Rules: []access_resolution.PolicyRule{{Resources: []string{"pods"}, Verbs: []string{"*"}}},
	}
	snap.ClusterRoleBindings = []access_resolution.Binding{{
		Kind:     access_resolution.KindClusterRoleBinding,
		Name:     "odd",
		Subjects: []access_resolution.Subject{{Kind: access_resolution.SubjectUser, Name: "alice"}},
		RoleRef:  access_resolution.RoleRef{Kind: access_resolution.KindRole, Name: "pods-all"},
	}}
	r := access_resolution.NewResolver(groups(nil), access_resolution.Options{}, nil)

	result := r.Aggregate([]string{"alice"}, snap, access_resolution.DefaultSensitivity())

	assert.Empty(t, result.ClusterWide)
	assert.Empty(t, result.Namespaced)
}
