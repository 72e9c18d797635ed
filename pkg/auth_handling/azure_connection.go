package auth_handling

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

type azureCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// AzureAuth reads a service principal from a KEY=VALUE file with
// AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET.
func AzureAuth(filePath string) (*azidentity.ClientSecretCredential, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	creds, err := parseAzureCredentials(file)
	if err != nil {
		return nil, err
	}

	return azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
}

func parseAzureCredentials(r io.Reader) (azureCredentials, error) {
	var creds azureCredentials

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}
		value := strings.TrimSpace(parts[1])
		switch strings.TrimSpace(parts[0]) {
		case "AZURE_TENANT_ID":
			creds.TenantID = value
		case "AZURE_CLIENT_ID":
			creds.ClientID = value
		case "AZURE_CLIENT_SECRET":
			creds.ClientSecret = value
		}
	}
	if err := scanner.Err(); err != nil {
		return creds, err
	}

	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return creds, fmt.Errorf("azure credentials file must set AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
	}
	return creds, nil
}
