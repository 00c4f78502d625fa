package azure

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/juju/errors"
)

const userAssignedIdentityType = "Microsoft.ManagedIdentity/userAssignedIdentities"

type identitiesAPI interface {
	Get(ctx context.Context, resourceGroupName string, resourceName string, options *armmsi.UserAssignedIdentitiesClientGetOptions) (armmsi.UserAssignedIdentitiesClientGetResponse, error)
}

// IdentityChecker verifies that user assigned identities exist. It
// implements assignment.IdentityChecker.
type IdentityChecker struct {
	newClient func(subscriptionID string) (identitiesAPI, error)
	caller    apiCaller
	clients   map[string]identitiesAPI
}

func (c *IdentityChecker) CheckUserAssignedIdentity(ctx context.Context, id string) error {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return errors.NewNotValid(err, "user assigned identity id "+id)
	}
	if !strings.EqualFold(rid.ResourceType.String(), userAssignedIdentityType) {
		return errors.NotValidf("%s is a %s, not a user assigned identity", id, rid.ResourceType.String())
	}
	client, err := c.client(rid.SubscriptionID)
	if err != nil {
		return errors.Trace(err)
	}
	var resp armmsi.UserAssignedIdentitiesClientGetResponse
	err = c.caller.call(ctx, "reading user assigned identity "+id, func() (err error) {
		resp, err = client.Get(ctx, rid.ResourceGroupName, rid.Name, nil)
		return err
	})
	if err != nil {
		return err
	}
	if resp.Properties != nil && resp.Properties.PrincipalID != nil {
		logger.Debugf("user assigned identity %s has principal %s", id, *resp.Properties.PrincipalID)
	}
	return nil
}

func (c *IdentityChecker) client(subscriptionID string) (identitiesAPI, error) {
	key := strings.ToLower(subscriptionID)
	if client, ok := c.clients[key]; ok {
		return client, nil
	}
	client, err := c.newClient(subscriptionID)
	if err != nil {
		return nil, errors.Annotatef(err, "identities client for subscription %s", subscriptionID)
	}
	if c.clients == nil {
		c.clients = make(map[string]identitiesAPI)
	}
	c.clients[key] = client
	return client, nil
}
