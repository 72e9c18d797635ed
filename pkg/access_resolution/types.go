package access_resolution

import (
	"time"
)

type SubjectKind string

const (
	SubjectUser           SubjectKind = "User"
	SubjectGroup          SubjectKind = "Group"
	SubjectServiceAccount SubjectKind = "ServiceAccount"
)

const (
	KindRole               = "Role"
	KindClusterRole        = "ClusterRole"
	KindRoleBinding        = "RoleBinding"
	KindClusterRoleBinding = "ClusterRoleBinding"
)

type Subject struct {
	Kind      SubjectKind
	Name      string
	Namespace string
}

type RoleRef struct {
	Kind string
	Name string
}

// Binding is either a ClusterRoleBinding (Namespace == "") or a RoleBinding.
type Binding struct {
	Kind      string
	Name      string
	Namespace string
	Subjects  []Subject
	RoleRef   RoleRef
}

func (b Binding) IsCluster() bool {
	return b.Kind == KindClusterRoleBinding
}

type PolicyRule struct {
	APIGroups       []string
	Resources       []string
	Verbs           []string
	ResourceNames   []string
	NonResourceURLs []string
}

// Role holds both Roles and ClusterRoles, ClusterRoles have an empty namespace
type Role struct {
	Name      string
	Namespace string
	Rules     []PolicyRule
}

func (r Role) Key() string {
	return RoleKey(r.Namespace, r.Name)
}

// RoleKey builds the lookup key for namespaced roles
func RoleKey(namespace, name string) string {
	return namespace + "/" + name
}

// PermissionSet maps a resource to the verbs granted on it, in first-seen order
type PermissionSet map[string][]string

// AccessGrant is one resolved (user, binding) result. Only Namespace, Resources and
// IsCluster are part of the access log schema.
type AccessGrant struct {
	Namespace string        `json:"namespace"`
	Resources PermissionSet `json:"resources"`
	IsCluster bool          `json:"is_cluster"`

	RoleKind    string `json:"-"`
	RoleName    string `json:"-"`
	BindingKind string `json:"-"`
	BindingName string `json:"-"`
}

// Snapshot is the point-in-time RBAC state a whole run is resolved against
type Snapshot struct {
	ClusterRoleBindings []Binding
	RoleBindings        []Binding
	ClusterRoles        map[string]Role // keyed by name
	Roles               map[string]Role // keyed by namespace/name
	FetchedAt           time.Time
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		ClusterRoles: make(map[string]Role),
		Roles:        make(map[string]Role),
	}
}

// GroupsOf returns the group set of a user
type GroupsOf func(username string) map[string]struct{}
