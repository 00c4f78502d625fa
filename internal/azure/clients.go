package azure

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("alzpolicy.azure")

// NewCredential returns the default Azure credential chain (environment,
// workload identity, managed identity, Azure CLI) for tenantID.
func NewCredential(tenantID string) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		return nil, errors.Annotate(err, "creating azure credential")
	}
	return cred, nil
}

// Clients builds the ARM clients used by the collaborators in this package.
type Clients struct {
	Credential     azcore.TokenCredential
	SubscriptionID string
	Options        *arm.ClientOptions
	Retry          RetryConfig
	Clock          retry.Clock
}

func (c *Clients) caller() apiCaller {
	clk := c.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return apiCaller{config: c.Retry.withDefaults(), clock: clk}
}

func (c *Clients) PolicySource() (*PolicySource, error) {
	defs, err := armpolicy.NewDefinitionsClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sets, err := armpolicy.NewSetDefinitionsClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &PolicySource{definitions: defs, setDefinitions: sets, caller: c.caller()}, nil
}

func (c *Clients) Executor() (*Executor, error) {
	deployments, err := armresources.NewDeploymentsClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	groups, err := armresources.NewResourceGroupsClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	providers, err := armresources.NewProvidersClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Executor{subscriptionID: c.SubscriptionID, deployments: deployments, groups: groups, providers: providers, caller: c.caller()}, nil
}

// ResourceLookup searches the given subscriptions, or the default one when
// none are given.
func (c *Clients) ResourceLookup(subscriptionIDs ...string) (*ResourceLookup, error) {
	if len(subscriptionIDs) == 0 {
		subscriptionIDs = []string{c.SubscriptionID}
	}
	lookup := &ResourceLookup{caller: c.caller()}
	for _, id := range subscriptionIDs {
		client, err := armresources.NewClient(id, c.Credential, c.Options)
		if err != nil {
			return nil, errors.Annotatef(err, "resources client for subscription %s", id)
		}
		lookup.clients = append(lookup.clients, client)
	}
	return lookup, nil
}

func (c *Clients) PrincipalReader() (*PrincipalReader, error) {
	assignments, err := armpolicy.NewAssignmentsClient(c.SubscriptionID, c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &PrincipalReader{assignments: assignments, caller: c.caller()}, nil
}

func (c *Clients) IdentityChecker() *IdentityChecker {
	return &IdentityChecker{
		newClient: func(subscriptionID string) (identitiesAPI, error) {
			return armmsi.NewUserAssignedIdentitiesClient(subscriptionID, c.Credential, c.Options)
		},
		caller: c.caller(),
	}
}

func (c *Clients) RoleVerifier() (*RoleVerifier, error) {
	defs, err := armauthorization.NewRoleDefinitionsClient(c.Credential, c.Options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newRoleVerifier(defs, c.caller()), nil
}
