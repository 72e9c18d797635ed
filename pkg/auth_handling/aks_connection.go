package auth_handling

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice/v6"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/config"
)

func connectToAKS(ctx context.Context, cluster config.ClusterConfig, log *zap.Logger) (kubernetes.Interface, error) {
	if client, ok := inClusterClient(log); ok {
		return client, nil
	}
	log.Info("No in-cluster config, trying AKS flow")

	cred, err := AzureAuth(cluster.AzureCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load Azure credentials: %w", err)
	}

	clientFactory, err := armcontainerservice.NewClientFactory(cluster.AzureSubscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	res, err := clientFactory.NewManagedClustersClient().ListClusterAdminCredentials(ctx, cluster.AzureResourceGroup, cluster.Name, nil)
	if err != nil {
		return nil, err
	}
	if len(res.Kubeconfigs) == 0 {
		return nil, errors.New("AKS returned no admin kubeconfig")
	}

	restConfig, err := clientcmd.RESTConfigFromKubeConfig(res.Kubeconfigs[0].Value)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to AKS cluster", zap.String("cluster", cluster.Name))
	return clientset, nil
}
