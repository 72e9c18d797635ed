package kube_collection

import (
	"context"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

// CollectRoles lists the Roles of every namespace, keyed by namespace/name
func CollectRoles(ctx context.Context, client kubernetes.Interface) (map[string]access_resolution.Role, error) {
	roleList, err := client.RbacV1().Roles(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	roles := make(map[string]access_resolution.Role, len(roleList.Items))
	for _, role := range roleList.Items {
		r := access_resolution.Role{
			Name:      role.Name,
			Namespace: role.Namespace,
			Rules:     convertRules(role.Rules),
		}
		roles[r.Key()] = r
	}

	return roles, nil
}

// CollectClusterRoles lists every ClusterRole, keyed by name
func CollectClusterRoles(ctx context.Context, client kubernetes.Interface) (map[string]access_resolution.Role, error) {
	clusterRoleList, err := client.RbacV1().ClusterRoles().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	clusterRoles := make(map[string]access_resolution.Role, len(clusterRoleList.Items))
	for _, clusterRole := range clusterRoleList.Items {
		clusterRoles[clusterRole.Name] = access_resolution.Role{
			Name:  clusterRole.Name,
			Rules: convertRules(clusterRole.Rules),
		}
	}

	return clusterRoles, nil
}

func convertRules(rules []rbacv1.PolicyRule) []access_resolution.PolicyRule {
	out := make([]access_resolution.PolicyRule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, access_resolution.PolicyRule{
			APIGroups:       rule.APIGroups,
			Resources:       rule.Resources,
			Verbs:           rule.Verbs,
			ResourceNames:   rule.ResourceNames,
			NonResourceURLs: rule.NonResourceURLs,
		})
	}
	return out
}
