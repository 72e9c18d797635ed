package auth_handling

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/eks"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/aws-iam-authenticator/pkg/token"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/config"
)

func connectToEKS(ctx context.Context, cluster config.ClusterConfig, log *zap.Logger) (kubernetes.Interface, error) {
	if client, ok := inClusterClient(log); ok {
		return client, nil
	}
	log.Info("No in-cluster config, trying EKS flow")

	sess, err := AwsAuth(cluster.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	result, err := eks.New(sess).DescribeClusterWithContext(ctx, &eks.DescribeClusterInput{
		Name: aws.String(cluster.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe EKS cluster: %w", err)
	}

	gen, err := token.NewGenerator(true, false)
	if err != nil {
		return nil, err
	}
	tok, err := gen.GetWithOptions(&token.GetTokenOptions{
		ClusterID: aws.StringValue(result.Cluster.Name),
		Session:   sess,
	})
	if err != nil {
		return nil, err
	}

	ca, err := base64.StdEncoding.DecodeString(aws.StringValue(result.Cluster.CertificateAuthority.Data))
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(&rest.Config{
		Host:        aws.StringValue(result.Cluster.Endpoint),
		BearerToken: tok.Token,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: ca,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to EKS cluster", zap.String("cluster", cluster.Name))
	return clientset, nil
}
