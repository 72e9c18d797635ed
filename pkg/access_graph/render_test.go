package access_graph

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
	ar "github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

func entries() []access_logging.AccessLogEntry {
	readers := ar.AccessGrant{
		IsCluster:   true,
		Resources:   ar.PermissionSet{"pods": {"get", "list"}},
		RoleKind:    ar.KindClusterRole,
		RoleName:    "viewer",
		BindingKind: ar.KindClusterRoleBinding,
		BindingName: "dev-viewers",
	}
	secrets := ar.AccessGrant{
		Namespace:   "billing",
		Resources:   ar.PermissionSet{"secrets": {"get"}},
		RoleKind:    ar.KindRole,
		RoleName:    "secret-reader",
		BindingKind: ar.KindRoleBinding,
		BindingName: "billing-secrets",
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []access_logging.AccessLogEntry{
		access_logging.NewEntry("alice", []string{"dev"}, []ar.AccessGrant{readers, secrets}, now),
		access_logging.NewEntry("bob", []string{"dev"}, []ar.AccessGrant{readers}, now),
		access_logging.NewEntry("carol", nil, nil, now),
	}
}

func TestRender(t *testing.T) {
	out := Render(entries(), Options{})

	assert.True(t, strings.HasPrefix(out, "digraph"))
	for _, label := range []string{"alice", "bob", "carol", "dev-viewers", "viewer", "billing-secrets", "secret-reader"} {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "doubleoctagon")
	assert.Contains(t, out, "billing")

	// alice->crb, alice->rb, bob->crb, crb->cr, rb->r; shared binding edges are drawn once
	assert.Equal(t, 5, strings.Count(out, "->"))
	assert.NotContains(t, out, "note")
}

func TestRender_Rules(t *testing.T) {
	out := Render(entries(), Options{RenderRules: true})

	assert.Contains(t, out, "note")
	assert.Contains(t, out, `pods: get,list\l`)
	assert.Equal(t, 7, strings.Count(out, "->"))
}

func TestRender_Empty(t *testing.T) {
	out := Render(nil, Options{})
	assert.True(t, strings.HasPrefix(out, "digraph"))
	assert.Equal(t, 0, strings.Count(out, "->"))
}
