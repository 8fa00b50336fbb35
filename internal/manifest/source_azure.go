package manifest

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

func (f *Fetcher) fetchAzure(ctx context.Context, location string) ([]byte, error) {
	container, blob, err := splitObjectPath(location, "az")
	if err != nil {
		return nil, err
	}
	if !f.storage.HasAzureConfig() {
		return nil, fmt.Errorf("reading %s needs AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY", location)
	}

	cred, err := azblob.NewSharedKeyCredential(f.storage.AzureAccountName, f.storage.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", f.storage.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	resp, err := client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	return readAllLimited(resp.Body, location)
}
