package auth_handling

import (
	"context"
	"encoding/base64"
	"fmt"

	container "cloud.google.com/go/container/apiv1"
	"cloud.google.com/go/container/apiv1/containerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/config"
)

func connectToGKE(ctx context.Context, cluster config.ClusterConfig, log *zap.Logger) (kubernetes.Interface, error) {
	if client, ok := inClusterClient(log); ok {
		return client, nil
	}
	log.Info("No in-cluster config, trying GKE flow")

	cred, err := GCPAuth(ctx, cluster.GCPCredentialsFile)
	if err != nil {
		return nil, err
	}

	containerClient, err := container.NewClusterManagerClient(ctx, option.WithCredentials(cred))
	if err != nil {
		return nil, err
	}
	defer containerClient.Close()

	gkeCluster, err := containerClient.GetCluster(ctx, &containerpb.GetClusterRequest{
		Name: fmt.Sprintf("projects/%s/locations/%s/clusters/%s", cluster.GCPProjectID, cluster.GCPRegion, cluster.Name),
	})
	if err != nil {
		return nil, err
	}

	ca, err := base64.StdEncoding.DecodeString(gkeCluster.MasterAuth.ClusterCaCertificate)
	if err != nil {
		return nil, err
	}

	token, err := cred.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get GKE access token: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(&rest.Config{
		Host:        "https://" + gkeCluster.Endpoint,
		BearerToken: token.AccessToken,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: ca,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to GKE cluster", zap.String("cluster", cluster.Name))
	return clientset, nil
}
