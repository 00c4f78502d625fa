package deploy

import (
	"context"

	"github.com/juju/errors"

	"github.com/davidahmann/alzpolicy/internal/catalog"
	"github.com/davidahmann/alzpolicy/internal/naming"
)

// ScopeKind is the level an ARM deployment is submitted at.
type ScopeKind string

const (
	ScopeManagementGroup ScopeKind = "managementGroup"
	ScopeTenant          ScopeKind = "tenant"
	ScopeSubscription    ScopeKind = "subscription"
	ScopeResourceGroup   ScopeKind = "resourceGroup"
)

// deploymentNameChars is the per-field hash length used in deployment
// names. Two fields keep the name well below the 64 character limit.
const deploymentNameChars = 8

// Request describes one template deployment.
type Request struct {
	Kind ScopeKind
	// ManagementGroupID is required for ScopeManagementGroup.
	ManagementGroupID string
	// SubscriptionID is required for ScopeSubscription and ScopeResourceGroup.
	SubscriptionID string
	ResourceGroup  string

	Name     string
	Location string

	TemplatePath string
	// ParametersPath is an optional ARM parameter file. Overrides win over
	// values read from it.
	ParametersPath string
	Overrides      map[string]any

	// TestMode validates the deployment instead of submitting it.
	TestMode bool
}

// Validate checks that the fields required by Kind are present.
func (r Request) Validate() error {
	if r.Name == "" {
		return errors.NotValidf("deployment without name")
	}
	if r.TemplatePath == "" {
		return errors.NotValidf("deployment %s without template", r.Name)
	}
	switch r.Kind {
	case ScopeManagementGroup:
		if r.ManagementGroupID == "" {
			return errors.NotValidf("management group deployment %s without management group id", r.Name)
		}
	case ScopeTenant:
	case ScopeSubscription:
		if r.SubscriptionID == "" {
			return errors.NotValidf("subscription deployment %s without subscription id", r.Name)
		}
	case ScopeResourceGroup:
		if r.SubscriptionID == "" || r.ResourceGroup == "" {
			return errors.NotValidf("resource group deployment %s without subscription id and resource group", r.Name)
		}
	default:
		return errors.NotValidf("deployment scope kind %q", r.Kind)
	}
	if r.Kind != ScopeResourceGroup && r.Location == "" {
		return errors.NotValidf("%s deployment %s without location", r.Kind, r.Name)
	}
	return nil
}

// ScopeID is the resource id of the deployment target.
func (r Request) ScopeID() string {
	switch r.Kind {
	case ScopeManagementGroup:
		return catalog.ManagementGroupScope(r.ManagementGroupID)
	case ScopeSubscription:
		return "/subscriptions/" + r.SubscriptionID
	case ScopeResourceGroup:
		return "/subscriptions/" + r.SubscriptionID + "/resourceGroups/" + r.ResourceGroup
	}
	return "/"
}

// Executor submits template deployments.
type Executor interface {
	Deploy(ctx context.Context, req Request) error
}

// DeploymentName derives a stable deployment name from the target scope and
// the template, so reruns update the previous deployment in place.
func DeploymentName(kind, scopeID, templatePath string) (string, error) {
	hash, err := naming.Generate([]string{scopeID, templatePath}, deploymentNameChars)
	if err != nil {
		return "", errors.Trace(err)
	}
	return "alz-" + kind + "-" + hash, nil
}
