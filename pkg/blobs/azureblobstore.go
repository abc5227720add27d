package blobs

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"k8s.io/klog/v2"

	"k8s.io/examples/storage/blobhelper/pkg/credentials"
)

const (
	AzureGlobal       = "AzureGlobal"
	AzureChinaCloud   = "AzureChinaCloud"
	AzureGermanCloud  = "AzureGermanCloud"
	AzureUSGovernment = "AzureUSGovernment"
)

var serviceURLFormats = map[string]string{
	AzureGlobal:       "https://%s.blob.core.windows.net",
	AzureChinaCloud:   "https://%s.blob.core.chinacloudapi.cn",
	AzureGermanCloud:  "https://%s.blob.core.cloudapi.de",
	AzureUSGovernment: "https://%s.blob.core.usgovcloudapi.net",
}

// SupportedEnvironments lists the Azure clouds an AzureBlobstore can address.
func SupportedEnvironments() []string {
	var envs []string
	for env := range serviceURLFormats {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs
}

// AzureBlobstore reads and writes blobs in an Azure storage account.
//
// The credential is resolved once, when the store is built. Every operation
// builds its own service handle from it, so a single AzureBlobstore can be
// used from multiple goroutines.
type AzureBlobstore struct {
	identity   credentials.Identity
	serviceURL string
	credential azcore.TokenCredential

	newServiceClient ServiceClientFactory
}

var _ Blobstore = (*AzureBlobstore)(nil)

type azureOptions struct {
	environment      string
	endpoint         string
	providers        credentials.Providers
	newServiceClient ServiceClientFactory
}

// AzureOption customizes an AzureBlobstore.
type AzureOption func(*azureOptions)

// WithEnvironment selects the Azure cloud, AzureGlobal by default.
func WithEnvironment(env string) AzureOption {
	return func(o *azureOptions) {
		o.environment = env
	}
}

// WithEndpoint overrides the account URL derived from the account name, e.g. for a
// private endpoint. Token credentials are only sent over TLS, so it must be an https URL.
func WithEndpoint(endpoint string) AzureOption {
	return func(o *azureOptions) {
		o.endpoint = endpoint
	}
}

// WithCredentialProviders replaces the azidentity credential constructors.
func WithCredentialProviders(providers credentials.Providers) AzureOption {
	return func(o *azureOptions) {
		o.providers = providers
	}
}

// WithServiceClientFactory replaces the azblob service client constructor.
func WithServiceClientFactory(factory ServiceClientFactory) AzureOption {
	return func(o *azureOptions) {
		o.newServiceClient = factory
	}
}

// NewAzureBlobstore builds a store for the account in identity. A managed identity
// credential is used when identity has a client id, the default chain otherwise.
func NewAzureBlobstore(identity credentials.Identity, opts ...AzureOption) (*AzureBlobstore, error) {
	if identity.AccountName == "" {
		return nil, fmt.Errorf("storage account name must be specified")
	}

	o := azureOptions{
		environment:      AzureGlobal,
		providers:        credentials.DefaultProviders(),
		newServiceClient: NewAzureServiceClientFactory(nil),
	}
	for _, opt := range opts {
		opt(&o)
	}

	serviceURL := strings.TrimSuffix(o.endpoint, "/")
	if serviceURL != "" {
		u, err := url.Parse(serviceURL)
		if err != nil {
			return nil, fmt.Errorf("parsing endpoint %q: %w", o.endpoint, err)
		}
		if u.Scheme != "https" || u.Host == "" {
			return nil, fmt.Errorf("endpoint %q must be an https URL", o.endpoint)
		}
	} else {
		format, ok := serviceURLFormats[o.environment]
		if !ok {
			return nil, fmt.Errorf("unsupported Azure environment %q, must be one of %s", o.environment, strings.Join(SupportedEnvironments(), ", "))
		}
		serviceURL = fmt.Sprintf(format, identity.AccountName)
	}

	cred, err := credentials.Resolve(identity, o.providers)
	if err != nil {
		return nil, err
	}

	return &AzureBlobstore{
		identity:         identity,
		serviceURL:       serviceURL,
		credential:       cred,
		newServiceClient: o.newServiceClient,
	}, nil
}

// ServiceURL is the account URL every operation targets.
func (s *AzureBlobstore) ServiceURL() string {
	return s.serviceURL
}

func (s *AzureBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	client, err := s.newServiceClient(s.serviceURL, s.credential)
	if err != nil {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	startedAt := time.Now()
	if err := client.BlobClient(info.Container, info.Name).Upload(ctx, src); err != nil {
		return err
	}

	log.V(2).Info("uploaded blob", "account", s.identity.AccountName, "blob", info, "source", sourcePath, "duration", time.Since(startedAt))
	return nil
}

func (s *AzureBlobstore) Download(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	client, err := s.newServiceClient(s.serviceURL, s.credential)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	body, err := client.BlobClient(info.Container, info.Name).Download(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	n, err := writeToFile(ctx, body, destPath)
	if err != nil {
		return err
	}

	log.V(2).Info("downloaded blob", "account", s.identity.AccountName, "blob", info, "destination", destPath, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

func (s *AzureBlobstore) Delete(ctx context.Context, info BlobInfo) error {
	log := klog.FromContext(ctx)

	client, err := s.newServiceClient(s.serviceURL, s.credential)
	if err != nil {
		return err
	}

	if err := client.BlobClient(info.Container, info.Name).Delete(ctx); err != nil {
		return err
	}

	log.V(2).Info("deleted blob", "account", s.identity.AccountName, "blob", info)
	return nil
}

// List drains every page of the container listing.
func (s *AzureBlobstore) List(ctx context.Context, container string) ([]string, error) {
	names := []string{}
	for name, err := range s.All(ctx, container) {
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	klog.FromContext(ctx).V(2).Info("listed blobs", "account", s.identity.AccountName, "container", container, "count", len(names))
	return names, nil
}

// All lists the container lazily, fetching the next page only once the
// previous one has been consumed. Iteration stops at the first error.
func (s *AzureBlobstore) All(ctx context.Context, container string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := s.newServiceClient(s.serviceURL, s.credential)
		if err != nil {
			yield("", err)
			return
		}

		pager := client.ContainerClient(container).NewListPager()
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", err)
				return
			}
			for _, name := range page {
				if !yield(name, nil) {
					return
				}
			}
		}
	}
}
