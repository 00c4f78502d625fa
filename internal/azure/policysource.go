package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
	"github.com/juju/errors"
)

type definitionsAPI interface {
	NewListBuiltInPager(options *armpolicy.DefinitionsClientListBuiltInOptions) *runtime.Pager[armpolicy.DefinitionsClientListBuiltInResponse]
	NewListByManagementGroupPager(managementGroupID string, options *armpolicy.DefinitionsClientListByManagementGroupOptions) *runtime.Pager[armpolicy.DefinitionsClientListByManagementGroupResponse]
}

type setDefinitionsAPI interface {
	NewListBuiltInPager(options *armpolicy.SetDefinitionsClientListBuiltInOptions) *runtime.Pager[armpolicy.SetDefinitionsClientListBuiltInResponse]
	NewListByManagementGroupPager(managementGroupID string, options *armpolicy.SetDefinitionsClientListByManagementGroupOptions) *runtime.Pager[armpolicy.SetDefinitionsClientListByManagementGroupResponse]
}

// PolicySource reads built-in and management group policy definitions from
// ARM. It implements catalog.Source.
type PolicySource struct {
	definitions    definitionsAPI
	setDefinitions setDefinitionsAPI
	caller         apiCaller
}

func (s *PolicySource) BuiltInDefinitions(ctx context.Context) ([]*armpolicy.Definition, error) {
	return drain(ctx, s.caller, "listing built-in policy definitions",
		s.definitions.NewListBuiltInPager(nil),
		func(page armpolicy.DefinitionsClientListBuiltInResponse) []*armpolicy.Definition { return page.Value })
}

func (s *PolicySource) ManagementGroupDefinitions(ctx context.Context, managementGroupID string) ([]*armpolicy.Definition, error) {
	return drain(ctx, s.caller, "listing policy definitions of "+managementGroupID,
		s.definitions.NewListByManagementGroupPager(managementGroupID, nil),
		func(page armpolicy.DefinitionsClientListByManagementGroupResponse) []*armpolicy.Definition { return page.Value })
}

func (s *PolicySource) BuiltInSetDefinitions(ctx context.Context) ([]*armpolicy.SetDefinition, error) {
	return drain(ctx, s.caller, "listing built-in policy set definitions",
		s.setDefinitions.NewListBuiltInPager(nil),
		func(page armpolicy.SetDefinitionsClientListBuiltInResponse) []*armpolicy.SetDefinition { return page.Value })
}

func (s *PolicySource) ManagementGroupSetDefinitions(ctx context.Context, managementGroupID string) ([]*armpolicy.SetDefinition, error) {
	return drain(ctx, s.caller, "listing policy set definitions of "+managementGroupID,
		s.setDefinitions.NewListByManagementGroupPager(managementGroupID, nil),
		func(page armpolicy.SetDefinitionsClientListByManagementGroupResponse) []*armpolicy.SetDefinition { return page.Value })
}

// drain reads every page of pager, retrying pages that failed transiently.
func drain[P any, T any](ctx context.Context, caller apiCaller, what string, pager *runtime.Pager[P], values func(P) []*T) ([]*T, error) {
	var out []*T
	for pager.More() {
		var page P
		err := caller.call(ctx, what, func() error {
			var err error
			page, err = pager.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, values(page)...)
	}
	logger.Debugf("%s: %d item(s)", what, len(out))
	return out, nil
}
