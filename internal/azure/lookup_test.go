package azure

import (
	"context"
	"net/http"
	"testing"

	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources/fake"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lawID = "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-mgmt/providers/Microsoft.OperationalInsights/workspaces/contoso-law"

func resource(id, name string) *armresources.GenericResourceExpanded {
	return &armresources.GenericResourceExpanded{ID: to.Ptr(id), Name: to.Ptr(name)}
}

func lookupServer(filters *[]string, pages ...[]*armresources.GenericResourceExpanded) *fake.ServerFactory {
	return &fake.ServerFactory{Server: fake.Server{
		NewListPager: func(options *armresources.ClientListOptions) (resp azfake.PagerResponder[armresources.ClientListResponse]) {
			if options != nil && options.Filter != nil {
				*filters = append(*filters, *options.Filter)
			}
			for _, page := range pages {
				resp.AddPage(http.StatusOK, armresources.ClientListResponse{
					ResourceListResult: armresources.ResourceListResult{Value: page},
				}, nil)
			}
			return
		},
	}}
}

func TestResourceLookupSingleMatch(t *testing.T) {
	var filters []string
	srv := lookupServer(&filters,
		[]*armresources.GenericResourceExpanded{resource(lawID, "contoso-law"), nil},
		[]*armresources.GenericResourceExpanded{resource("/subscriptions/x/resourceGroups/y/providers/A/b/contoso-law-2", "contoso-law-2")},
	)
	lookup, err := testClients(srv, newFakeClock()).ResourceLookup()
	require.NoError(t, err)

	id, err := lookup.ResourceID(context.Background(), "contoso-law")
	require.NoError(t, err)
	assert.Equal(t, lawID, id)
	assert.Equal(t, []string{"name eq 'contoso-law'"}, filters)
}

func TestResourceLookupMisses(t *testing.T) {
	var filters []string
	lookup, err := testClients(lookupServer(&filters, nil), newFakeClock()).ResourceLookup()
	require.NoError(t, err)

	_, err = lookup.ResourceID(context.Background(), "o'brien")
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Equal(t, []string{"name eq 'o''brien'"}, filters)
}

func TestResourceLookupAmbiguous(t *testing.T) {
	var filters []string
	other := "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-other/providers/Microsoft.OperationalInsights/workspaces/contoso-law"
	srv := lookupServer(&filters, []*armresources.GenericResourceExpanded{
		resource(lawID, "contoso-law"),
		resource(other, "Contoso-LAW"),
	})
	lookup, err := testClients(srv, newFakeClock()).ResourceLookup(subscriptionID, subscriptionID)
	require.NoError(t, err)

	_, err = lookup.ResourceID(context.Background(), "contoso-law")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Contains(t, err.Error(), "matches 2 resources")
	assert.Len(t, filters, 2)
}
