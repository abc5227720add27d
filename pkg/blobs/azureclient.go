package blobs

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
)

// ServiceClient is a handle on one storage account, used to derive container and blob handles.
type ServiceClient interface {
	BlobClient(containerName, blobName string) BlobClient
	ContainerClient(containerName string) ContainerClient
}

// BlobClient operates on a single blob.
type BlobClient interface {
	// Upload replaces the blob content with body.
	Upload(ctx context.Context, body io.Reader) error
	// Download opens the blob content for reading.
	Download(ctx context.Context) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

// ContainerClient operates on a single container.
type ContainerClient interface {
	NewListPager() ListPager
}

// ListPager walks a (possibly paged) listing of blob names.
type ListPager interface {
	More() bool
	NextPage(ctx context.Context) ([]string, error)
}

// ServiceClientFactory builds a service handle for the account at serviceURL.
type ServiceClientFactory func(serviceURL string, cred azcore.TokenCredential) (ServiceClient, error)

// NewAzureServiceClientFactory returns a factory building azblob service clients with opts.
func NewAzureServiceClientFactory(opts *service.ClientOptions) ServiceClientFactory {
	return func(serviceURL string, cred azcore.TokenCredential) (ServiceClient, error) {
		client, err := service.NewClient(serviceURL, cred, opts)
		if err != nil {
			return nil, err
		}
		return &azureServiceClient{client: client}, nil
	}
}

type azureServiceClient struct {
	client *service.Client
}

func (c *azureServiceClient) BlobClient(containerName, blobName string) BlobClient {
	return &azureBlobClient{client: c.client.NewContainerClient(containerName).NewBlockBlobClient(blobName)}
}

func (c *azureServiceClient) ContainerClient(containerName string) ContainerClient {
	return &azureContainerClient{client: c.client.NewContainerClient(containerName)}
}

type azureBlobClient struct {
	client *blockblob.Client
}

func (c *azureBlobClient) Upload(ctx context.Context, body io.Reader) error {
	// Without access conditions the upload replaces any existing blob.
	_, err := c.client.UploadStream(ctx, body, nil)
	return err
}

func (c *azureBlobClient) Download(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *azureBlobClient) Delete(ctx context.Context) error {
	_, err := c.client.Delete(ctx, nil)
	return err
}

type azureContainerClient struct {
	client *container.Client
}

func (c *azureContainerClient) NewListPager() ListPager {
	return &azureListPager{pager: c.client.NewListBlobsFlatPager(nil)}
}

type azureListPager struct {
	pager *runtime.Pager[container.ListBlobsFlatResponse]
}

func (p *azureListPager) More() bool {
	return p.pager.More()
}

func (p *azureListPager) NextPage(ctx context.Context) ([]string, error) {
	resp, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Segment == nil {
		return nil, nil
	}
	names := make([]string, 0, len(resp.Segment.BlobItems))
	for _, item := range resp.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		names = append(names, *item.Name)
	}
	return names, nil
}
