package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"k8s.io/klog/v2"
)

// Identity names the storage account and, optionally, the client id of a
// user-assigned managed identity used to authenticate against it.
type Identity struct {
	AccountName string
	ClientID    string
}

// UsesManagedIdentity reports whether the identity selects the managed identity credential.
func (i Identity) UsesManagedIdentity() bool {
	return i.ClientID != ""
}

// Providers constructs the two kinds of credential an Identity can resolve to.
type Providers struct {
	// ManagedIdentity builds a credential for the managed identity with the given client id.
	ManagedIdentity func(clientID string) (azcore.TokenCredential, error)

	// Default builds the ambient credential chain used when no client id is configured.
	Default func() (azcore.TokenCredential, error)
}

// DefaultProviders returns the providers backed by azidentity.
func DefaultProviders() Providers {
	return Providers{
		ManagedIdentity: NewManagedIdentity,
		Default: func() (azcore.TokenCredential, error) {
			return NewChain(DefaultChain())
		},
	}
}

// Resolve picks the credential for identity. No token is requested here; a
// misconfigured credential only fails when the first remote call asks for a token.
func Resolve(identity Identity, providers Providers) (azcore.TokenCredential, error) {
	if identity.UsesManagedIdentity() {
		if providers.ManagedIdentity == nil {
			return nil, fmt.Errorf("no managed identity credential provider configured")
		}
		return providers.ManagedIdentity(identity.ClientID)
	}
	if providers.Default == nil {
		return nil, fmt.Errorf("no default credential provider configured")
	}
	return providers.Default()
}

// NewManagedIdentity returns a credential for the user-assigned managed identity with clientID.
func NewManagedIdentity(clientID string) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
		ID: azidentity.ClientID(clientID),
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Source is one strategy in a credential chain.
type Source struct {
	Name string
	New  func() (azcore.TokenCredential, error)
}

// DefaultChain is the ordered list of strategies tried when no client id is given.
func DefaultChain() []Source {
	return []Source{
		{
			Name: "environment",
			New: func() (azcore.TokenCredential, error) {
				return azidentity.NewEnvironmentCredential(nil)
			},
		},
		{
			Name: "workload-identity",
			New: func() (azcore.TokenCredential, error) {
				return azidentity.NewWorkloadIdentityCredential(nil)
			},
		},
		{
			Name: "managed-identity",
			New: func() (azcore.TokenCredential, error) {
				return azidentity.NewManagedIdentityCredential(nil)
			},
		},
		{
			Name: "azure-cli",
			New: func() (azcore.TokenCredential, error) {
				return azidentity.NewAzureCLICredential(nil)
			},
		},
		{
			Name: "azure-developer-cli",
			New: func() (azcore.TokenCredential, error) {
				return azidentity.NewAzureDeveloperCLICredential(nil)
			},
		},
	}
}

// NewChain builds every source in order and combines the ones that could be
// constructed. The chain asks each credential for a token in turn and stops at
// the first success. Sources that fail to construct are skipped; if none can be
// constructed the returned credential reports why on every GetToken call.
func NewChain(sources []Source) (azcore.TokenCredential, error) {
	var creds []azcore.TokenCredential
	var errs []error
	for _, source := range sources {
		cred, err := source.New()
		if err != nil {
			klog.V(4).InfoS("skipping credential source", "source", source.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", source.Name, err))
			continue
		}
		creds = append(creds, cred)
	}

	if len(creds) == 0 {
		return &unavailableCredential{err: errors.Join(errs...)}, nil
	}
	chain, err := azidentity.NewChainedTokenCredential(creds, nil)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

type unavailableCredential struct {
	err error
}

var _ azcore.TokenCredential = (*unavailableCredential)(nil)

func (c *unavailableCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	msg := "no credential source could be constructed"
	if c.err != nil {
		msg += ": " + c.err.Error()
	}
	return azcore.AccessToken{}, azidentity.NewCredentialUnavailableError(msg)
}
