package access_resolution

import (
	"sort"
)

var (
	DefaultSensitiveNamespaces = []string{"kube-system", "default"}
	DefaultSensitiveResources  = []string{"secrets", "pods", "nodes", "namespaces"}
)

type Sensitivity struct {
	Namespaces []string
	Resources  []string
}

func DefaultSensitivity() Sensitivity {
	return Sensitivity{
		Namespaces: append([]string(nil), DefaultSensitiveNamespaces...),
		Resources:  append([]string(nil), DefaultSensitiveResources...),
	}
}

type NamespaceAccessKey struct {
	Namespace string
	Verb      string
	Resource  string
}

type ClusterAccessKey struct {
	Verb     string
	Resource string
}

// SensitiveAccess holds the distinct users per sensitive (scope, verb, resource)
type SensitiveAccess struct {
	Namespaced  map[NamespaceAccessKey]map[string]struct{}
	ClusterWide map[ClusterAccessKey]map[string]struct{}
}

type NamespaceAccessCount struct {
	NamespaceAccessKey
	Users int
}

type ClusterAccessCount struct {
	ClusterAccessKey
	Users int
}

func newSensitiveAccess() *SensitiveAccess {
	return &SensitiveAccess{
		Namespaced:  make(map[NamespaceAccessKey]map[string]struct{}),
		ClusterWide: make(map[ClusterAccessKey]map[string]struct{}),
	}
}

func (s *SensitiveAccess) addNamespaced(key NamespaceAccessKey, username string) {
	users, ok := s.Namespaced[key]
	if !ok {
		users = make(map[string]struct{})
		s.Namespaced[key] = users
	}
	users[username] = struct{}{}
}

func (s *SensitiveAccess) addClusterWide(key ClusterAccessKey, username string) {
	users, ok := s.ClusterWide[key]
	if !ok {
		users = make(map[string]struct{})
		s.ClusterWide[key] = users
	}
	users[username] = struct{}{}
}

// NamespaceCounts returns the per-namespace user counts sorted by key
func (s *SensitiveAccess) NamespaceCounts() []NamespaceAccessCount {
	counts := make([]NamespaceAccessCount, 0, len(s.Namespaced))
	for key, users := range s.Namespaced {
		counts = append(counts, NamespaceAccessCount{NamespaceAccessKey: key, Users: len(users)})
	}
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		return a.Verb < b.Verb
	})
	return counts
}

// ClusterCounts returns the cluster-wide user counts sorted by key
func (s *SensitiveAccess) ClusterCounts() []ClusterAccessCount {
	counts := make([]ClusterAccessCount, 0, len(s.ClusterWide))
	for key, users := range s.ClusterWide {
		counts = append(counts, ClusterAccessCount{ClusterAccessKey: key, Users: len(users)})
	}
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		return a.Verb < b.Verb
	})
	return counts
}

// Aggregate counts, for every sensitive resource, which users reach it in the watched namespaces
// and cluster-wide. Cluster-wide access is attributed to every watched namespace as well.
func (r *Resolver) Aggregate(usernames []string, snapshot *Snapshot, sensitivity Sensitivity) *SensitiveAccess {
	result := newSensitiveAccess()
	if snapshot == nil {
		return result
	}

	watchedNamespaces := toSet(sensitivity.Namespaces)
	watchedResources := toSet(sensitivity.Resources)

	for _, crb := range snapshot.ClusterRoleBindings {
		if len(crb.Subjects) == 0 || crb.RoleRef.Kind != KindClusterRole {
			continue
		}
		clusterRole, ok := snapshot.ClusterRoles[crb.RoleRef.Name]
		if !ok {
			continue
		}
		permissions := ExtractPermissions(clusterRole)

		for _, username := range usernames {
			if !MatchesSubjects(username, crb.Subjects, r.groupsOf) {
				continue
			}
			for resource, verbs := range permissions {
				if _, ok := watchedResources[resource]; !ok {
					continue
				}
				for _, verb := range verbs {
					result.addClusterWide(ClusterAccessKey{Verb: verb, Resource: resource}, username)
					for _, namespace := range sensitivity.Namespaces {
						result.addNamespaced(NamespaceAccessKey{Namespace: namespace, Verb: verb, Resource: resource}, username)
					}
				}
			}
		}
	}

	for _, rb := range snapshot.RoleBindings {
		if len(rb.Subjects) == 0 {
			continue
		}
		if _, ok := watchedNamespaces[rb.Namespace]; !ok {
			continue
		}
		role, _, ok := r.lookupRoleBindingRole(rb, snapshot)
		if !ok {
			continue
		}
		permissions := ExtractPermissions(role)

		for _, username := range usernames {
			if !MatchesSubjects(username, rb.Subjects, r.groupsOf) {
				continue
			}
			for resource, verbs := range permissions {
				if _, ok := watchedResources[resource]; !ok {
					continue
				}
				for _, verb := range verbs {
					result.addNamespaced(NamespaceAccessKey{Namespace: rb.Namespace, Verb: verb, Resource: resource}, username)
				}
			}
		}
	}

	return result
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
