package azure

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	mapset "github.com/deckarep/golang-set/v2"
)

type roleDefinitionsAPI interface {
	GetByID(ctx context.Context, roleID string, options *armauthorization.RoleDefinitionsClientGetByIDOptions) (armauthorization.RoleDefinitionsClientGetByIDResponse, error)
}

// RoleVerifier checks role definitions by id and remembers the ones it has
// seen. It implements deploy.RoleVerifier.
type RoleVerifier struct {
	definitions roleDefinitionsAPI
	caller      apiCaller
	verified    mapset.Set[string]
}

func newRoleVerifier(definitions roleDefinitionsAPI, caller apiCaller) *RoleVerifier {
	return &RoleVerifier{
		definitions: definitions,
		caller:      caller,
		verified:    mapset.NewSet[string](),
	}
}

func (v *RoleVerifier) VerifyRoleDefinition(ctx context.Context, roleDefinitionID string) error {
	key := strings.ToLower(roleDefinitionID)
	if v.verified.Contains(key) {
		return nil
	}
	var resp armauthorization.RoleDefinitionsClientGetByIDResponse
	err := v.caller.call(ctx, "reading role definition "+roleDefinitionID, func() (err error) {
		resp, err = v.definitions.GetByID(ctx, roleDefinitionID, nil)
		return err
	})
	if err != nil {
		return err
	}
	if resp.Properties != nil && resp.Properties.RoleName != nil {
		logger.Debugf("role definition %s is %q", roleDefinitionID, *resp.Properties.RoleName)
	}
	v.verified.Add(key)
	return nil
}
