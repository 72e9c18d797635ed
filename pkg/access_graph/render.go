package access_graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

type Options struct {
	// RenderRules adds a note with the granted resources and verbs next to every role
	RenderRules bool
}

type renderer struct {
	g           *dot.Graph
	opts        Options
	nsSubgraphs map[string]*dot.Graph
	edges       map[string]struct{}
}

// Render draws user -> binding -> role for every grant of the entries. Namespaced bindings
// and the roles they grant are grouped in one dashed cluster per namespace.
func Render(entries []access_logging.AccessLogEntry, opts Options) string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("newrank", "true")
	g.Attr("rankdir", "LR")

	r := &renderer{
		g:           g,
		opts:        opts,
		nsSubgraphs: map[string]*dot.Graph{"": g},
		edges:       map[string]struct{}{},
	}

	for _, entry := range entries {
		userNode := newUserNode(g, entry.Username)
		for _, access := range entry.Accesses {
			bindingNode := r.renderBindingAndRole(access)
			r.edge(userNode, bindingNode, "u-"+entry.Username, bindingID(access))
		}
	}

	return g.String()
}

func (r *renderer) renderBindingAndRole(access access_resolution.AccessGrant) dot.Node {
	gns := r.namespaceSubgraph(access.Namespace)

	var bindingNode dot.Node
	if access.IsCluster {
		bindingNode = newClusterRoleBindingNode(gns, access.BindingName)
	} else {
		bindingNode = newRoleBindingNode(gns, access.BindingName)
	}

	var roleNode dot.Node
	if access.RoleKind == access_resolution.KindClusterRole {
		roleNode = newClusterRoleNode(gns, access.Namespace, access.RoleName)
	} else {
		roleNode = newRoleNode(gns, access.Namespace, access.RoleName)
	}
	r.edge(bindingNode, roleNode, bindingID(access), roleID(access))

	if r.opts.RenderRules {
		rulesID := "rules-" + roleID(access)
		rulesNode := newRulesNode(gns, rulesID, access.Resources)
		r.edge(roleNode, rulesNode, roleID(access), rulesID)
	}

	return bindingNode
}

func (r *renderer) edge(from, to dot.Node, fromID, toID string) {
	key := fromID + "->" + toID
	if _, ok := r.edges[key]; ok {
		return
	}
	r.edges[key] = struct{}{}
	from.Edge(to)
}

func (r *renderer) namespaceSubgraph(ns string) *dot.Graph {
	gns, ok := r.nsSubgraphs[ns]
	if !ok {
		gns = r.g.Subgraph(ns, dot.ClusterOption{})
		gns.Attr("style", "dashed")
		r.nsSubgraphs[ns] = gns
	}
	return gns
}

func bindingID(access access_resolution.AccessGrant) string {
	if access.IsCluster {
		return "crb-" + access.BindingName
	}
	return "rb-" + access.Namespace + "/" + access.BindingName
}

func roleID(access access_resolution.AccessGrant) string {
	if access.RoleKind == access_resolution.KindClusterRole {
		return "cr-" + access.Namespace + "/" + access.RoleName
	}
	return "r-" + access.Namespace + "/" + access.RoleName
}

func newUserNode(g *dot.Graph, name string) dot.Node {
	return g.Node("u-"+name).
		Box().
		Attr("label", name).
		Attr("style", "filled").
		Attr("fillcolor", "#2f6de1").
		Attr("fontcolor", "#f0f0f0")
}

func newRoleBindingNode(g *dot.Graph, name string) dot.Node {
	return g.Node("rb-"+name).
		Attr("label", name).
		Attr("shape", "octagon").
		Attr("style", "filled").
		Attr("fillcolor", "#ffcc00").
		Attr("fontcolor", "#030303")
}

func newClusterRoleBindingNode(g *dot.Graph, name string) dot.Node {
	return g.Node("crb-"+name).
		Attr("label", name).
		Attr("shape", "doubleoctagon").
		Attr("style", "filled").
		Attr("fillcolor", "#ffcc00").
		Attr("fontcolor", "#030303")
}

func newRoleNode(g *dot.Graph, namespace, name string) dot.Node {
	return g.Node("r-"+namespace+"/"+name).
		Attr("label", name).
		Attr("shape", "octagon").
		Attr("style", "filled").
		Attr("fillcolor", "#ff9900").
		Attr("fontcolor", "#030303")
}

func newClusterRoleNode(g *dot.Graph, namespace, name string) dot.Node {
	return g.Node("cr-"+namespace+"/"+name).
		Attr("label", name).
		Attr("shape", "doubleoctagon").
		Attr("style", "filled").
		Attr("fillcolor", "#ff9900").
		Attr("fontcolor", "#030303")
}

func newRulesNode(g *dot.Graph, id string, permissions access_resolution.PermissionSet) dot.Node {
	resources := make([]string, 0, len(permissions))
	for resource := range permissions {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	var b strings.Builder
	for _, resource := range resources {
		fmt.Fprintf(&b, "%s: %s\n", resource, strings.Join(permissions[resource], ","))
	}

	rules := b.String()
	rules = strings.ReplaceAll(rules, `\`, `\\`)
	rules = strings.ReplaceAll(rules, "\n", `\l`) // left-justify text
	rules = strings.ReplaceAll(rules, `"`, `\"`)
	return g.Node(id).
		Attr("label", dot.Literal(`"`+rules+`"`)).
		Attr("shape", "note")
}
