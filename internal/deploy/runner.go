package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/davidahmann/alzpolicy/internal/roles"
	"github.com/davidahmann/alzpolicy/pkg/types"
)

var logger = loggo.GetLogger("alzpolicy.deploy")

const (
	PolicyAssignmentsParameter = "policyAssignments"
	RoleAssignmentsParameter   = "roleAssignments"

	DefaultReadinessTimeout = 5 * time.Minute
	DefaultPollInterval     = 10 * time.Second
	maxPollInterval         = time.Minute
)

// errNotReady marks an assignment whose identity cannot be read yet.
const errNotReady = errors.ConstError("identity not ready")

// PrincipalReader reads the principal id of the system assigned identity of
// a policy assignment. A missing assignment or an empty principal id means
// the identity is not ready yet.
type PrincipalReader interface {
	PrincipalID(ctx context.Context, scope, assignmentName string) (string, error)
}

// RoleVerifier checks that a role definition exists.
type RoleVerifier interface {
	VerifyRoleDefinition(ctx context.Context, roleDefinitionID string) error
}

type Templates struct {
	PolicyAssignments string
	RoleAssignments   string
	// Parameters is an optional parameter file passed to both deployments.
	Parameters string
}

// Runner deploys a plan scope by scope. Each scope is deployed in two
// phases: the policy assignments, then, once every assignment identity can
// be read, the role assignments for those identities.
type Runner struct {
	Executor   Executor
	Principals PrincipalReader
	// Roles is optional.
	Roles     RoleVerifier
	Templates Templates
	Location  string
	TestMode  bool

	ReadinessTimeout time.Duration
	PollInterval     time.Duration
	Clock            retry.Clock
}

// Result records what was submitted for one scope.
type Result struct {
	Scope             string
	PolicyDeployment  string
	RoleDeployment    string
	PolicyAssignments int
	RoleAssignments   int
	Principals        map[string]string
}

func (r *Runner) validate() error {
	if r.Executor == nil {
		return errors.NotValidf("runner without executor")
	}
	if r.Templates.PolicyAssignments == "" || r.Templates.RoleAssignments == "" {
		return errors.NotValidf("runner without templates")
	}
	if r.Location == "" {
		return errors.NotValidf("runner without location")
	}
	if !r.TestMode && r.Principals == nil {
		return errors.NotValidf("runner without principal reader")
	}
	return nil
}

// Run deploys every scope of p in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, p types.Plan) ([]Result, error) {
	if err := r.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	results := make([]Result, 0, len(p.Scopes))
	for _, sp := range p.Scopes {
		res, err := r.DeployScope(ctx, sp)
		if err != nil {
			return results, errors.Annotatef(err, "deploying %s", sp.Scope)
		}
		results = append(results, res)
	}
	return results, nil
}

// DeployScope runs both phases for one management group.
func (r *Runner) DeployScope(ctx context.Context, sp types.ScopePlan) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, errors.Trace(err)
	}
	res := Result{
		Scope:             sp.Scope,
		PolicyAssignments: len(sp.PolicyAssignments),
		RoleAssignments:   len(sp.RoleAssignments),
	}

	name, err := r.deploy(ctx, sp, "policy", r.Templates.PolicyAssignments, PolicyAssignmentsParameter, sp.PolicyAssignments)
	if err != nil {
		return res, errors.Trace(err)
	}
	res.PolicyDeployment = name

	if len(sp.RoleAssignments) == 0 {
		return res, nil
	}

	if r.Roles != nil {
		for _, roleID := range distinctRoles(sp.RoleAssignments) {
			if err := r.Roles.VerifyRoleDefinition(ctx, roleID); err != nil {
				return res, errors.Annotatef(err, "verifying role definition %s", roleID)
			}
		}
	}

	payload := make([]types.RoleAssignment, len(sp.RoleAssignments))
	copy(payload, sp.RoleAssignments)
	if r.TestMode {
		logger.Infof("test mode: not waiting for identities at %s", sp.Scope)
	} else {
		principals, err := r.waitForPrincipals(ctx, sp)
		if err != nil {
			return res, errors.Trace(err)
		}
		res.Principals = principals
		for i := range payload {
			payload[i].PrincipalID = principals[payload[i].PolicyAssignmentName]
		}
	}

	if res.RoleDeployment, err = r.deploy(ctx, sp, "roles", r.Templates.RoleAssignments, RoleAssignmentsParameter, payload); err != nil {
		return res, errors.Trace(err)
	}
	return res, nil
}

func (r *Runner) deploy(ctx context.Context, sp types.ScopePlan, kind, template, parameter string, payload any) (string, error) {
	name, err := DeploymentName(kind, sp.Scope, template)
	if err != nil {
		return "", errors.Trace(err)
	}
	req := Request{
		Kind:              ScopeManagementGroup,
		ManagementGroupID: sp.ManagementGroupID,
		Name:              name,
		Location:          r.Location,
		TemplatePath:      template,
		ParametersPath:    r.Templates.Parameters,
		Overrides:         map[string]any{parameter: payload},
		TestMode:          r.TestMode,
	}
	if err := req.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	logger.Infof("deploying %s to %s (test mode %v)", name, sp.Scope, r.TestMode)
	if err := r.Executor.Deploy(ctx, req); err != nil {
		return "", errors.Annotatef(err, "deployment %s", name)
	}
	return name, nil
}

// waitForPrincipals polls until the identity of every assignment that owns
// a role assignment can be read, and returns the principal ids by
// assignment name.
func (r *Runner) waitForPrincipals(ctx context.Context, sp types.ScopePlan) (map[string]string, error) {
	principals := make(map[string]string)
	for _, ra := range sp.RoleAssignments {
		name := ra.PolicyAssignmentName
		if _, ok := principals[name]; ok {
			continue
		}
		id, err := r.waitForPrincipal(ctx, sp.Scope, name)
		if err != nil {
			return nil, errors.Annotatef(err, "waiting for identity of %s", name)
		}
		principals[name] = id
	}
	return principals, nil
}

func (r *Runner) waitForPrincipal(ctx context.Context, scope, name string) (string, error) {
	var principalID string
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			id, err := r.Principals.PrincipalID(ctx, scope, name)
			if errors.Is(err, errors.NotFound) || (err == nil && id == "") {
				return errNotReady
			}
			if err != nil {
				return err
			}
			principalID = id
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errNotReady)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("identity of %s, attempt %d: %v", name, attempt, err)
		},
		Attempts:    -1,
		Delay:       durationOr(r.PollInterval, DefaultPollInterval),
		MaxDelay:    maxPollInterval,
		MaxDuration: durationOr(r.ReadinessTimeout, DefaultReadinessTimeout),
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.clock(),
		Stop:        ctx.Done(),
	})
	if retry.IsDurationExceeded(err) {
		return "", errors.Timeoutf("identity of %s at %s", name, scope)
	}
	if retry.IsRetryStopped(err) {
		return "", errors.Trace(ctx.Err())
	}
	if err != nil {
		return "", errors.Trace(err)
	}
	logger.Debugf("identity of %s is %s", name, principalID)
	return principalID, nil
}

func (r *Runner) clock() retry.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clock.WallClock
}

func distinctRoles(in []types.RoleAssignment) []string {
	reqs := make([]roles.Requirement, len(in))
	for i, ra := range in {
		reqs[i] = roles.Requirement{RoleDefinitionID: ra.RoleDefinitionID, AssignmentName: ra.PolicyAssignmentName, Scope: ra.Scope}
	}
	return roles.RoleDefinitionIDs(reqs)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (res Result) String() string {
	return fmt.Sprintf("%s: %d policy assignment(s) via %s, %d role assignment(s) via %s",
		res.Scope, res.PolicyAssignments, res.PolicyDeployment, res.RoleAssignments, firstNonEmpty(res.RoleDeployment, "-"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
