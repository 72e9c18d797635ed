package access_resolution

import (
	"sort"

	"go.uber.org/zap"
)

type Options struct {
	// LegacyRoleRefLookup resolves every RoleBinding against the namespaced roles,
	// even when it references a ClusterRole.
	LegacyRoleRefLookup bool
}

type Resolver struct {
	groupsOf GroupsOf
	opts     Options
	log      *zap.Logger
}

func NewResolver(groupsOf GroupsOf, opts Options, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		groupsOf: groupsOf,
		opts:     opts,
		log:      log,
	}
}

// Resolve walks every binding of the snapshot and returns the grants the user holds through them
func (r *Resolver) Resolve(username string, snapshot *Snapshot) []AccessGrant {
	accesses := []AccessGrant{}
	if snapshot == nil {
		return accesses
	}

	for _, crb := range snapshot.ClusterRoleBindings {
		if !MatchesSubjects(username, crb.Subjects, r.groupsOf) {
			continue
		}
		clusterRole, ok := snapshot.ClusterRoles[crb.RoleRef.Name]
		if !ok {
			r.log.Debug("ClusterRole not found for binding",
				zap.String("binding", crb.Name), zap.String("role", crb.RoleRef.Name))
			continue
		}
		permissions := ExtractPermissions(clusterRole)
		if len(permissions) == 0 {
			continue
		}
		accesses = append(accesses, AccessGrant{
			Namespace:   "",
			Resources:   permissions,
			IsCluster:   true,
			RoleKind:    KindClusterRole,
			RoleName:    clusterRole.Name,
			BindingKind: KindClusterRoleBinding,
			BindingName: crb.Name,
		})
	}

	for _, rb := range snapshot.RoleBindings {
		if !MatchesSubjects(username, rb.Subjects, r.groupsOf) {
			continue
		}
		role, kind, ok := r.lookupRoleBindingRole(rb, snapshot)
		if !ok {
			r.log.Debug("Role not found for binding",
				zap.String("binding", rb.Name), zap.String("namespace", rb.Namespace),
				zap.String("roleKind", rb.RoleRef.Kind), zap.String("role", rb.RoleRef.Name))
			continue
		}
		permissions := ExtractPermissions(role)
		if len(permissions) == 0 {
			continue
		}
		accesses = append(accesses, AccessGrant{
			Namespace:   rb.Namespace,
			Resources:   permissions,
			IsCluster:   false,
			RoleKind:    kind,
			RoleName:    role.Name,
			BindingKind: KindRoleBinding,
			BindingName: rb.Name,
		})
	}

	SortGrants(accesses)
	return accesses
}

// A RoleBinding referencing a ClusterRole grants that ClusterRole's rules inside the
// binding's namespace only.
func (r *Resolver) lookupRoleBindingRole(rb Binding, snapshot *Snapshot) (Role, string, bool) {
	if rb.RoleRef.Kind == KindClusterRole && !r.opts.LegacyRoleRefLookup {
		role, ok := snapshot.ClusterRoles[rb.RoleRef.Name]
		return role, KindClusterRole, ok
	}
	role, ok := snapshot.Roles[RoleKey(rb.Namespace, rb.RoleRef.Name)]
	return role, KindRole, ok
}

// SortGrants orders grants cluster-wide first, then by namespace, role and binding name
func SortGrants(grants []AccessGrant) {
	sort.SliceStable(grants, func(i, j int) bool {
		a, b := grants[i], grants[j]
		if a.IsCluster != b.IsCluster {
			return a.IsCluster
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.RoleName != b.RoleName {
			return a.RoleName < b.RoleName
		}
		return a.BindingName < b.BindingName
	})
}
