package auth_handling

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	container2 "google.golang.org/api/container/v1"
)

func GCPAuth(ctx context.Context, filePath string) (*google.Credentials, error) {
	jsonKey, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, jsonKey, container2.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google credentials: %w", err)
	}
	return creds, nil
}
