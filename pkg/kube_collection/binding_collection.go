package kube_collection

import (
	"context"

	"go.uber.org/zap"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

// CollectClusterRoleBindings lists every ClusterRoleBinding. Bindings without a roleRef name are dropped.
func CollectClusterRoleBindings(ctx context.Context, client kubernetes.Interface, log *zap.Logger) ([]access_resolution.Binding, error) {
	list, err := client.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	bindings := make([]access_resolution.Binding, 0, len(list.Items))
	for _, crb := range list.Items {
		if crb.RoleRef.Name == "" {
			log.Warn("Skipping ClusterRoleBinding without roleRef name", zap.String("binding", crb.Name))
			continue
		}
		bindings = append(bindings, access_resolution.Binding{
			Kind:     access_resolution.KindClusterRoleBinding,
			Name:     crb.Name,
			Subjects: convertSubjects(crb.Subjects),
			RoleRef:  convertRoleRef(crb.RoleRef),
		})
	}

	return bindings, nil
}

// CollectRoleBindings lists the RoleBindings of every namespace
func CollectRoleBindings(ctx context.Context, client kubernetes.Interface, log *zap.Logger) ([]access_resolution.Binding, error) {
	list, err := client.RbacV1().RoleBindings(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	bindings := make([]access_resolution.Binding, 0, len(list.Items))
	for _, rb := range list.Items {
		if rb.RoleRef.Name == "" {
			log.Warn("Skipping RoleBinding without roleRef name",
				zap.String("binding", rb.Name), zap.String("namespace", rb.Namespace))
			continue
		}
		bindings = append(bindings, access_resolution.Binding{
			Kind:      access_resolution.KindRoleBinding,
			Name:      rb.Name,
			Namespace: rb.Namespace,
			Subjects:  convertSubjects(rb.Subjects),
			RoleRef:   convertRoleRef(rb.RoleRef),
		})
	}

	return bindings, nil
}

func convertSubjects(subjects []rbacv1.Subject) []access_resolution.Subject {
	out := make([]access_resolution.Subject, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, access_resolution.Subject{
			Kind:      access_resolution.SubjectKind(s.Kind),
			Name:      s.Name,
			Namespace: s.Namespace,
		})
	}
	return out
}

func convertRoleRef(ref rbacv1.RoleRef) access_resolution.RoleRef {
	return access_resolution.RoleRef{Kind: ref.Kind, Name: ref.Name}
}
