package main

import (
	"context"

	"github.com/juju/errors"

	"github.com/davidahmann/alzpolicy/internal/assignment"
	"github.com/davidahmann/alzpolicy/internal/azure"
	"github.com/davidahmann/alzpolicy/internal/catalog"
	"github.com/davidahmann/alzpolicy/internal/config"
	"github.com/davidahmann/alzpolicy/internal/deploy"
)

// azureEnv supplies the collaborators that talk to Azure. ARM clients are
// created on first use, so offline runs never need a credential.
type azureEnv interface {
	lookup() assignment.ResourceLookup
	identities() assignment.IdentityChecker
	source() (catalog.Source, error)
	runner(ctx context.Context, cfg config.Config, testMode bool) (*deploy.Runner, error)
}

var newAzureEnv = func(cfg config.Config) azureEnv {
	return &armEnv{cfg: cfg}
}

type armEnv struct {
	cfg     config.Config
	clients *azure.Clients
}

func (e *armEnv) arm() (*azure.Clients, error) {
	if e.clients != nil {
		return e.clients, nil
	}
	cred, err := azure.NewCredential(e.cfg.TenantID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	e.clients = &azure.Clients{
		Credential:     cred,
		SubscriptionID: e.cfg.Subscription,
		Retry: azure.RetryConfig{
			Delay:       e.cfg.Retry.Delay,
			MaxDelay:    e.cfg.Retry.MaxDelay,
			MaxDuration: e.cfg.Retry.MaxDuration,
		},
	}
	return e.clients, nil
}

// offline reports whether policy definitions come from local files. Offline
// runs skip user assigned identity checks.
func (e *armEnv) offline() bool {
	return e.cfg.DefinitionsPath != ""
}

func (e *armEnv) lookup() assignment.ResourceLookup {
	return &lazyLookup{env: e}
}

func (e *armEnv) identities() assignment.IdentityChecker {
	if e.offline() {
		return nil
	}
	return &lazyIdentities{env: e}
}

func (e *armEnv) source() (catalog.Source, error) {
	if e.offline() {
		logger.Infof("reading policy definitions from %s", e.cfg.DefinitionsPath)
		return &catalog.DirSource{Path: e.cfg.DefinitionsPath}, nil
	}
	clients, err := e.arm()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return clients.PolicySource()
}

func (e *armEnv) runner(ctx context.Context, cfg config.Config, testMode bool) (*deploy.Runner, error) {
	clients, err := e.arm()
	if err != nil {
		return nil, errors.Trace(err)
	}
	executor, err := clients.Executor()
	if err != nil {
		return nil, errors.Trace(err)
	}
	executor.Tags = map[string]string{"alzOrganization": cfg.Organization}
	if len(cfg.Providers) > 0 && !testMode {
		if err := executor.RegisterProviders(ctx, cfg.Providers...); err != nil {
			return nil, errors.Trace(err)
		}
	}
	principals, err := clients.PrincipalReader()
	if err != nil {
		return nil, errors.Trace(err)
	}
	roleDefs, err := clients.RoleVerifier()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &deploy.Runner{
		Executor:   executor,
		Principals: principals,
		Roles:      roleDefs,
		Templates: deploy.Templates{
			PolicyAssignments: cfg.Templates.PolicyAssignments,
			RoleAssignments:   cfg.Templates.RoleAssignments,
			Parameters:        cfg.Templates.Parameters,
		},
		Location:         cfg.Location,
		TestMode:         testMode,
		ReadinessTimeout: cfg.Identity.ReadinessTimeout,
		PollInterval:     cfg.Identity.PollInterval,
	}, nil
}

type lazyLookup struct {
	env    *armEnv
	lookup *azure.ResourceLookup
}

func (l *lazyLookup) ResourceID(ctx context.Context, name string) (string, error) {
	if l.lookup == nil {
		clients, err := l.env.arm()
		if err != nil {
			return "", errors.Trace(err)
		}
		lookup, err := clients.ResourceLookup(l.env.cfg.LookupSubscriptions()...)
		if err != nil {
			return "", errors.Trace(err)
		}
		l.lookup = lookup
	}
	return l.lookup.ResourceID(ctx, name)
}

type lazyIdentities struct {
	env     *armEnv
	checker *azure.IdentityChecker
}

func (l *lazyIdentities) CheckUserAssignedIdentity(ctx context.Context, id string) error {
	if l.checker == nil {
		clients, err := l.env.arm()
		if err != nil {
			return errors.Trace(err)
		}
		l.checker = clients.IdentityChecker()
	}
	return l.checker.CheckUserAssignedIdentity(ctx, id)
}
