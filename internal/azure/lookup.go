package azure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

// ResourceLookup resolves resource names to resource ids by listing the
// resources of one or more subscriptions. It implements
// assignment.ResourceLookup.
type ResourceLookup struct {
	clients []*armresources.Client
	caller  apiCaller
}

// ResourceID returns the id of the only resource called name. Zero matches
// is a NotFound error; several matches is a NotValid error listing them.
func (l *ResourceLookup) ResourceID(ctx context.Context, name string) (string, error) {
	filter := fmt.Sprintf("name eq '%s'", strings.ReplaceAll(name, "'", "''"))
	seen := mapset.NewThreadUnsafeSet[string]()
	var ids []string
	for _, client := range l.clients {
		resources, err := drain(ctx, l.caller, "looking up resource "+name,
			client.NewListPager(&armresources.ClientListOptions{Filter: &filter}),
			func(page armresources.ClientListResponse) []*armresources.GenericResourceExpanded { return page.Value })
		if err != nil {
			return "", errors.Trace(err)
		}
		for _, res := range resources {
			if res == nil || res.ID == nil {
				continue
			}
			if res.Name != nil && !strings.EqualFold(*res.Name, name) {
				continue
			}
			if seen.Add(strings.ToLower(*res.ID)) {
				ids = append(ids, *res.ID)
			}
		}
	}
	switch len(ids) {
	case 0:
		return "", errors.NotFoundf("resource %q", name)
	case 1:
		logger.Debugf("resource %q is %s", name, ids[0])
		return ids[0], nil
	}
	sort.Strings(ids)
	return "", errors.NotValidf("resource name %q matches %d resources (%s)", name, len(ids), strings.Join(ids, ", "))
}
