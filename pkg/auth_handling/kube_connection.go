package auth_handling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/config"
)

// KubeConnect builds a client for the configured cluster type. Every mode prefers the
// in-cluster service account when one is mounted.
func KubeConnect(ctx context.Context, cluster config.ClusterConfig, log *zap.Logger) (kubernetes.Interface, error) {
	switch cluster.Type {
	case "EKS":
		log.Info("EKS mode", zap.String("cluster", cluster.Name))
		return connectToEKS(ctx, cluster, log)
	case "AKS":
		log.Info("AKS mode", zap.String("cluster", cluster.Name))
		return connectToAKS(ctx, cluster, log)
	case "GKE":
		log.Info("GKE mode", zap.String("cluster", cluster.Name))
		return connectToGKE(ctx, cluster, log)
	case "LOCAL", "":
		log.Info("Local mode")
		return connectToLocal(cluster, log)
	default:
		return nil, fmt.Errorf("unsupported cluster type: %s", cluster.Type)
	}
}

func inClusterClient(log *zap.Logger) (kubernetes.Interface, bool) {
	config, err := rest.InClusterConfig()
	if err != nil {
		log.Debug("No in-cluster config", zap.Error(err))
		return nil, false
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		log.Warn("Failed to create Kubernetes client using in-cluster config", zap.Error(err))
		return nil, false
	}
	log.Info("Using in-cluster config")
	return clientset, true
}

func connectToLocal(cluster config.ClusterConfig, log *zap.Logger) (kubernetes.Interface, error) {
	if client, ok := inClusterClient(log); ok {
		return client, nil
	}

	kubeConfigPath, err := kubeconfigPath(cluster.Kubeconfig)
	if err != nil {
		return nil, err
	}
	log.Info("Using kubeconfig", zap.String("path", kubeConfigPath))

	kubeConfig, err := clientcmd.BuildConfigFromFlags("", kubeConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error getting Kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to cluster")
	return clientset, nil
}

func kubeconfigPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting user home dir: %w", err)
	}
	return filepath.Join(userHomeDir, ".kube", "config"), nil
}
