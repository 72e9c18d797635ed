package access_logging

import (
	"sort"
	"time"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

// TimestampFormat is ISO-8601 in UTC with microseconds and a literal Z
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// AccessLogEntry is one NDJSON record of the access log
type AccessLogEntry struct {
	Username  string                          `json:"username"`
	Groups    []string                        `json:"groups"`
	Accesses  []access_resolution.AccessGrant `json:"accesses"`
	Timestamp string                          `json:"timestamp"`
}

func NewEntry(username string, groups []string, accesses []access_resolution.AccessGrant, runTime time.Time) AccessLogEntry {
	if groups == nil {
		groups = []string{}
	}
	if accesses == nil {
		accesses = []access_resolution.AccessGrant{}
	}
	return AccessLogEntry{
		Username:  username,
		Groups:    groups,
		Accesses:  accesses,
		Timestamp: FormatTimestamp(runTime),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// FlattenedAccess is a single (scope, resource, verb) grant
type FlattenedAccess struct {
	Namespace string `json:"namespace"`
	Resource  string `json:"resource"`
	Verb      string `json:"verb"`
	IsCluster bool   `json:"is_cluster"`

	RoleKind    string `json:"-"`
	RoleName    string `json:"-"`
	BindingKind string `json:"-"`
	BindingName string `json:"-"`
}

// Flatten expands grants into one record per verb. Grants keep their order, resources
// are sorted by name and verbs keep their granted order.
func Flatten(accesses []access_resolution.AccessGrant) []FlattenedAccess {
	flat := []FlattenedAccess{}
	for _, access := range accesses {
		resources := make([]string, 0, len(access.Resources))
		for resource := range access.Resources {
			resources = append(resources, resource)
		}
		sort.Strings(resources)

		for _, resource := range resources {
			for _, verb := range access.Resources[resource] {
				flat = append(flat, FlattenedAccess{
					Namespace:   access.Namespace,
					Resource:    resource,
					Verb:        verb,
					IsCluster:   access.IsCluster,
					RoleKind:    access.RoleKind,
					RoleName:    access.RoleName,
					BindingKind: access.BindingKind,
					BindingName: access.BindingName,
				})
			}
		}
	}
	return flat
}
