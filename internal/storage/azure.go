package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type azureAdapter struct {
	account   string
	container string
	prefix    string
	client    *azblob.Client
}

// newAzure builds an Azure-blob-backed adapter. Credential resolution is
// an ordered chain: explicit connection string, explicit account key,
// connection string or key from the process environment, then managed
// identity via DefaultAzureCredential; first success wins.
func newAzure(cfg Config) (*azureAdapter, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("storage: azure container is required")
	}

	client, err := azureClient(cfg)
	if err != nil {
		return nil, err
	}

	return &azureAdapter{
		account:   cfg.AccountName,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Path, "/"),
		client:    client,
	}, nil
}

func azureClient(cfg Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: azure connection string: %w", err)
		}
		return c, nil
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)

	if cfg.AccountKey != "" {
		return sharedKeyClient(serviceURL, cfg.AccountName, cfg.AccountKey)
	}

	if env := os.Getenv("AZURE_STORAGE_CONNECTION_STRING"); env != "" {
		c, err := azblob.NewClientFromConnectionString(env, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: azure env connection string: %w", err)
		}
		return c, nil
	}

	if envKey := os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"); envKey != "" {
		return sharedKeyClient(serviceURL, cfg.AccountName, envKey)
	}

	if cfg.AccountName == "" {
		return nil, fmt.Errorf("storage: azure account name is required without a connection string")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure default credential: %w", err)
	}
	c, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w", err)
	}
	return c, nil
}

func sharedKeyClient(serviceURL, account, key string) (*azblob.Client, error) {
	if account == "" {
		return nil, fmt.Errorf("storage: azure account name is required with an account key")
	}
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("storage: azure shared key: %w", err)
	}
	c, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w", err)
	}
	return c, nil
}

func (a *azureAdapter) ListFiles(ctx context.Context, extFilter []string) ([]FileInfo, error) {
	if extFilter == nil {
		extFilter = DefaultExtensions
	}

	opts := &azblob.ListBlobsFlatOptions{}
	if a.prefix != "" {
		prefix := a.prefix + "/"
		opts.Prefix = &prefix
	}

	var files []FileInfo
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name := path.Base(*item.Name)
			if !matchesExtension(name, extFilter) {
				continue
			}

			var size int64
			var modified string
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					modified = item.Properties.LastModified.UTC().Format(time.RFC3339)
				}
			}

			files = append(files, FileInfo{
				Name:     name,
				Path:     fmt.Sprintf("azure://%s/%s/%s", a.account, a.container, *item.Name),
				Size:     size,
				Modified: modified,
				Type:     fileType(name),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	return files, nil
}

func (a *azureAdapter) ReadFile(ctx context.Context, filePath string) (string, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobFor(filePath), nil)
	if err != nil {
		return "", fmt.Errorf("azure read %s: %w", filePath, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("azure read %s: %w", filePath, err)
	}
	return string(b), nil
}

func (a *azureAdapter) FileExists(ctx context.Context, filePath string) bool {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(a.blobFor(filePath))
	_, err := blobClient.GetProperties(ctx, nil)
	return err == nil
}

func (a *azureAdapter) GetFileInfo(ctx context.Context, filePath string) (*FileInfo, error) {
	blobName := a.blobFor(filePath)
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(blobName)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, nil
	}

	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	var modified string
	if props.LastModified != nil {
		modified = props.LastModified.UTC().Format(time.RFC3339)
	}

	name := path.Base(blobName)
	return &FileInfo{
		Name:     name,
		Path:     fmt.Sprintf("azure://%s/%s/%s", a.account, a.container, blobName),
		Size:     size,
		Modified: modified,
		Type:     fileType(name),
	}, nil
}

func (a *azureAdapter) TestConnection(ctx context.Context) TestResult {
	containerClient := a.client.ServiceClient().NewContainerClient(a.container)
	_, err := containerClient.GetProperties(ctx, nil)
	if err == nil {
		return TestResult{Success: true, Message: fmt.Sprintf("Successfully connected to Azure container: %s", a.container)}
	}

	switch {
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return TestResult{Success: false, Message: fmt.Sprintf("Container not found: %s", a.container)}
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure):
		return TestResult{Success: false, Message: "Authentication failed. Check credentials."}
	}
	return TestResult{Success: false, Message: fmt.Sprintf("Azure error: %v", err)}
}

func (a *azureAdapter) Close() error { return nil }

// blobFor accepts either a bare blob name or an azure://account/container/blob URI.
func (a *azureAdapter) blobFor(filePath string) string {
	if !strings.HasPrefix(filePath, "azure://") {
		return filePath
	}
	rest := strings.TrimPrefix(filePath, "azure://")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return ""
}
