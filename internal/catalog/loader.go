package catalog

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("alzpolicy.catalog")

// Source lists built-in and management group scoped policy definitions.
type Source interface {
	BuiltInDefinitions(ctx context.Context) ([]*armpolicy.Definition, error)
	ManagementGroupDefinitions(ctx context.Context, managementGroupID string) ([]*armpolicy.Definition, error)
	BuiltInSetDefinitions(ctx context.Context) ([]*armpolicy.SetDefinition, error)
	ManagementGroupSetDefinitions(ctx context.Context, managementGroupID string) ([]*armpolicy.SetDefinition, error)
}

// Load builds the catalog for a run. Custom definitions found at the
// management group replace built-in definitions with the same id.
func Load(ctx context.Context, src Source, managementGroupID string) (*Catalog, error) {
	if managementGroupID == "" {
		return nil, errors.NotValidf("empty management group id")
	}
	cat := New()

	builtIn, err := src.BuiltInDefinitions(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "listing built-in policy definitions")
	}
	custom, err := src.ManagementGroupDefinitions(ctx, managementGroupID)
	if err != nil {
		return nil, errors.Annotatef(err, "listing policy definitions at %q", managementGroupID)
	}
	for _, def := range append(builtIn, custom...) {
		if def == nil {
			continue
		}
		converted, err := DefinitionFromARM(def, customFallbackID(managementGroupID, def.Name, CustomDefinitionID))
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := cat.PutDefinition(converted); err != nil {
			return nil, errors.Trace(err)
		}
	}

	builtInSets, err := src.BuiltInSetDefinitions(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "listing built-in policy set definitions")
	}
	customSets, err := src.ManagementGroupSetDefinitions(ctx, managementGroupID)
	if err != nil {
		return nil, errors.Annotatef(err, "listing policy set definitions at %q", managementGroupID)
	}
	for _, set := range append(builtInSets, customSets...) {
		if set == nil {
			continue
		}
		converted, err := SetDefinitionFromARM(set, customFallbackID(managementGroupID, set.Name, CustomSetDefinitionID))
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := cat.PutSetDefinition(converted); err != nil {
			return nil, errors.Trace(err)
		}
	}

	logger.Infof("loaded %d policy definitions and %d policy set definitions for %q",
		cat.DefinitionCount(), cat.SetDefinitionCount(), managementGroupID)
	return cat, nil
}

func customFallbackID(managementGroupID string, name *string, idFn func(string, string) string) string {
	if name == nil || *name == "" {
		return ""
	}
	return idFn(managementGroupID, *name)
}
