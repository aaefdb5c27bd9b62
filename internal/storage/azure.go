// Azure Blob Storage backend.
//
// Authenticates with a shared key when static credentials are configured
// (access_key_id = account name, secret_access_key = account key),
// otherwise with DefaultAzureCredential (env vars, workload identity,
// managed identity, az login).
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// AzureOptions carries the resolved settings for one Azure Blob backend.
type AzureOptions struct {
	// Container is the blob container name.
	Container string
	// AccountURL is the storage account URL, e.g.
	// https://myaccount.blob.core.windows.net.
	AccountURL string
	// AccountName and AccountKey enable shared-key auth when both are set.
	AccountName string
	AccountKey  string
	// Timeout bounds each operation. Zero disables the bound.
	Timeout time.Duration
}

// AzureBackend implements Backend against an Azure Blob container.
type AzureBackend struct {
	container string
	timeout   time.Duration
	client    *azblob.Client
}

// NewAzureBackend creates the Azure Blob client for the configured account.
func NewAzureBackend(opts AzureOptions) (*AzureBackend, error) {
	var client *azblob.Client

	if opts.AccountName != "" && opts.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("creating Azure shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(opts.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure credential: %w", err)
		}
		client, err = azblob.NewClient(opts.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client: %w", err)
		}
	}

	slog.Info("Azure Blob backend initialized", "container", opts.Container, "account", opts.AccountURL)
	return &AzureBackend{
		container: opts.Container,
		timeout:   opts.Timeout,
		client:    client,
	}, nil
}

// Exists checks the key via blob properties.
func (b *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(key)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		slog.Error("Azure GetProperties failed", "container", b.container, "key", key, "error", err)
		return false, fmt.Errorf("%w: checking blob in Azure: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return true, nil
}

// Put streams the reader to a block blob. UploadStream stages blocks as
// data arrives; the payload is never collected in memory. The size hint is
// unused, block staging handles unknown lengths.
func (b *AzureBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.UploadStream(ctx, b.container, key, r, nil)
	if err != nil {
		slog.Error("Azure upload failed", "container", b.container, "key", key, "error", err)
		return fmt.Errorf("%w: uploading to Azure: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the blob body as a stream.
func (b *AzureBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		cancel()
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%w: %s", cacheerr.ErrNotFound, key)
		}
		slog.Error("Azure download failed", "container", b.container, "key", key, "error", err)
		return nil, fmt.Errorf("%w: getting blob from Azure: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Ping verifies the configured container is reachable.
func (b *AzureBackend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.ServiceClient().NewContainerClient(b.container).GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: container %q unreachable: %w", cacheerr.ErrBackendUnavailable, b.container, err)
	}
	return nil
}

// Ensure AzureBackend implements Backend at compile time.
var _ Backend = (*AzureBackend)(nil)
