package azure

import (
	"context"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/errors"

	"github.com/davidahmann/alzpolicy/internal/deploy"
)

// Executor submits ARM template deployments. It implements deploy.Executor.
type Executor struct {
	// subscriptionID is the subscription the clients are bound to.
	subscriptionID string
	deployments    *armresources.DeploymentsClient
	groups         *armresources.ResourceGroupsClient
	providers      *armresources.ProvidersClient
	caller         apiCaller

	// PollFrequency overrides the SDK default between long running
	// operation polls.
	PollFrequency time.Duration
	Tags          map[string]string
}

func (e *Executor) pollOptions() *runtime.PollUntilDoneOptions {
	if e.PollFrequency <= 0 {
		return nil
	}
	return &runtime.PollUntilDoneOptions{Frequency: e.PollFrequency}
}

func (e *Executor) tags() map[string]*string {
	if len(e.Tags) == 0 {
		return nil
	}
	out := make(map[string]*string, len(e.Tags))
	for k, v := range e.Tags {
		out[k] = to.Ptr(v)
	}
	return out
}

// Deploy creates or validates the deployment described by req.
func (e *Executor) Deploy(ctx context.Context, req deploy.Request) error {
	if err := req.Validate(); err != nil {
		return errors.Trace(err)
	}
	if (req.Kind == deploy.ScopeSubscription || req.Kind == deploy.ScopeResourceGroup) &&
		!strings.EqualFold(req.SubscriptionID, e.subscriptionID) {
		return errors.NotSupportedf("deployment %s to subscription %s from a client bound to %s", req.Name, req.SubscriptionID, e.subscriptionID)
	}
	props, err := LoadDeploymentProperties(req.TemplatePath, req.ParametersPath, req.Overrides)
	if err != nil {
		return errors.Trace(err)
	}
	if req.Kind == deploy.ScopeResourceGroup && req.Location != "" {
		if err := e.EnsureResourceGroup(ctx, req.ResourceGroup, req.Location); err != nil {
			return errors.Trace(err)
		}
	}
	if req.TestMode {
		logger.Infof("validating deployment %s at %s", req.Name, req.ScopeID())
		return errors.Trace(e.validate(ctx, req, props))
	}
	logger.Infof("creating deployment %s at %s", req.Name, req.ScopeID())
	return errors.Trace(e.create(ctx, req, props))
}

func (e *Executor) create(ctx context.Context, req deploy.Request, props *armresources.DeploymentProperties) error {
	what := "deployment " + req.Name
	scoped := armresources.ScopedDeployment{Location: to.Ptr(req.Location), Properties: props, Tags: e.tags()}
	plain := armresources.Deployment{Properties: props, Tags: e.tags()}
	if req.Location != "" {
		plain.Location = to.Ptr(req.Location)
	}

	switch req.Kind {
	case deploy.ScopeManagementGroup:
		var poller *runtime.Poller[armresources.DeploymentsClientCreateOrUpdateAtManagementGroupScopeResponse]
		err := e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginCreateOrUpdateAtManagementGroupScope(ctx, req.ManagementGroupID, req.Name, scoped, nil)
			return err
		})
		if err != nil {
			return err
		}
		_, err = poller.PollUntilDone(ctx, e.pollOptions())
		return classify(err, what)
	case deploy.ScopeTenant:
		var poller *runtime.Poller[armresources.DeploymentsClientCreateOrUpdateAtTenantScopeResponse]
		err := e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginCreateOrUpdateAtTenantScope(ctx, req.Name, scoped, nil)
			return err
		})
		if err != nil {
			return err
		}
		_, err = poller.PollUntilDone(ctx, e.pollOptions())
		return classify(err, what)
	case deploy.ScopeSubscription:
		var poller *runtime.Poller[armresources.DeploymentsClientCreateOrUpdateAtSubscriptionScopeResponse]
		err := e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginCreateOrUpdateAtSubscriptionScope(ctx, req.Name, plain, nil)
			return err
		})
		if err != nil {
			return err
		}
		_, err = poller.PollUntilDone(ctx, e.pollOptions())
		return classify(err, what)
	case deploy.ScopeResourceGroup:
		var poller *runtime.Poller[armresources.DeploymentsClientCreateOrUpdateResponse]
		err := e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginCreateOrUpdate(ctx, req.ResourceGroup, req.Name, plain, nil)
			return err
		})
		if err != nil {
			return err
		}
		_, err = poller.PollUntilDone(ctx, e.pollOptions())
		return classify(err, what)
	}
	return errors.NotValidf("deployment scope kind %q", req.Kind)
}

func (e *Executor) validate(ctx context.Context, req deploy.Request, props *armresources.DeploymentProperties) error {
	what := "validating deployment " + req.Name
	scoped := armresources.ScopedDeployment{Location: to.Ptr(req.Location), Properties: props, Tags: e.tags()}
	plain := armresources.Deployment{Properties: props, Tags: e.tags()}
	if req.Location != "" {
		plain.Location = to.Ptr(req.Location)
	}

	var (
		result armresources.DeploymentValidateResult
		err    error
	)
	switch req.Kind {
	case deploy.ScopeManagementGroup:
		var poller *runtime.Poller[armresources.DeploymentsClientValidateAtManagementGroupScopeResponse]
		err = e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginValidateAtManagementGroupScope(ctx, req.ManagementGroupID, req.Name, scoped, nil)
			return err
		})
		if err != nil {
			return err
		}
		var resp armresources.DeploymentsClientValidateAtManagementGroupScopeResponse
		resp, err = poller.PollUntilDone(ctx, e.pollOptions())
		result = resp.DeploymentValidateResult
	case deploy.ScopeTenant:
		var poller *runtime.Poller[armresources.DeploymentsClientValidateAtTenantScopeResponse]
		err = e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginValidateAtTenantScope(ctx, req.Name, scoped, nil)
			return err
		})
		if err != nil {
			return err
		}
		var resp armresources.DeploymentsClientValidateAtTenantScopeResponse
		resp, err = poller.PollUntilDone(ctx, e.pollOptions())
		result = resp.DeploymentValidateResult
	case deploy.ScopeSubscription:
		var poller *runtime.Poller[armresources.DeploymentsClientValidateAtSubscriptionScopeResponse]
		err = e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginValidateAtSubscriptionScope(ctx, req.Name, plain, nil)
			return err
		})
		if err != nil {
			return err
		}
		var resp armresources.DeploymentsClientValidateAtSubscriptionScopeResponse
		resp, err = poller.PollUntilDone(ctx, e.pollOptions())
		result = resp.DeploymentValidateResult
	case deploy.ScopeResourceGroup:
		var poller *runtime.Poller[armresources.DeploymentsClientValidateResponse]
		err = e.caller.call(ctx, what, func() (err error) {
			poller, err = e.deployments.BeginValidate(ctx, req.ResourceGroup, req.Name, plain, nil)
			return err
		})
		if err != nil {
			return err
		}
		var resp armresources.DeploymentsClientValidateResponse
		resp, err = poller.PollUntilDone(ctx, e.pollOptions())
		result = resp.DeploymentValidateResult
	default:
		return errors.NotValidf("deployment scope kind %q", req.Kind)
	}
	if err != nil {
		return classify(err, what)
	}
	if result.Error != nil {
		return errors.NotValidf("deployment %s: %s", req.Name, describe(result.Error))
	}
	return nil
}

// EnsureResourceGroup creates the resource group if needed.
func (e *Executor) EnsureResourceGroup(ctx context.Context, name, location string) error {
	return e.caller.call(ctx, "creating resource group "+name, func() error {
		_, err := e.groups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
			Location: to.Ptr(location),
			Tags:     e.tags(),
		}, nil)
		return err
	})
}

// RegisterProviders registers resource provider namespaces with the
// subscription.
func (e *Executor) RegisterProviders(ctx context.Context, namespaces ...string) error {
	for _, ns := range namespaces {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		logger.Debugf("registering resource provider %s", ns)
		err := e.caller.call(ctx, "registering resource provider "+ns, func() error {
			_, err := e.providers.Register(ctx, ns, nil)
			return err
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func describe(e *armresources.ErrorResponse) string {
	if e == nil {
		return ""
	}
	parts := []string{}
	if e.Code != nil {
		parts = append(parts, *e.Code)
	}
	if e.Message != nil {
		parts = append(parts, *e.Message)
	}
	for _, detail := range e.Details {
		if d := describe(detail); d != "" {
			parts = append(parts, "("+d+")")
		}
	}
	return strings.Join(parts, ": ")
}
