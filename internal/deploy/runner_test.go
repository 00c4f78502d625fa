package deploy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/alzpolicy/pkg/types"
)

type fakeExecutor struct {
	requests []Request
	failOn   string
}

func (f *fakeExecutor) Deploy(_ context.Context, req Request) error {
	f.requests = append(f.requests, req)
	if f.failOn != "" && strings.Contains(req.Name, f.failOn) {
		return errors.New("deployment failed")
	}
	return nil
}

type fakePrincipals struct {
	// notReady is the number of calls per assignment that report no identity.
	notReady map[string]int
	err      error
	calls    map[string]int
}

func (f *fakePrincipals) PrincipalID(_ context.Context, _ string, name string) (string, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
	if f.err != nil {
		return "", f.err
	}
	if f.calls[name] <= f.notReady[name] {
		if f.calls[name]%2 == 0 {
			return "", nil
		}
		return "", errors.NotFoundf("policy assignment %s", name)
	}
	return "principal-" + name, nil
}

type fakeRoles struct {
	missing  string
	verified []string
}

func (f *fakeRoles) VerifyRoleDefinition(_ context.Context, id string) error {
	f.verified = append(f.verified, id)
	if id == f.missing {
		return errors.NotFoundf("role definition %s", id)
	}
	return nil
}

type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

const (
	platform = "/providers/Microsoft.Management/managementGroups/contoso-platform"
	corp     = "/providers/Microsoft.Management/managementGroups/contoso-corp"
	reader   = "/providers/Microsoft.Authorization/roleDefinitions/reader"
	writer   = "/providers/Microsoft.Authorization/roleDefinitions/writer"
)

func scopePlan() types.ScopePlan {
	return types.ScopePlan{
		ManagementGroupID: "contoso-platform",
		Scope:             platform,
		PolicyAssignments: []types.PolicyAssignment{{Name: "A"}, {Name: "B"}},
		RoleAssignments: []types.RoleAssignment{
			{PolicyAssignmentName: "A", RoleDefinitionID: reader, Scope: platform},
			{PolicyAssignmentName: "A", RoleDefinitionID: writer, Scope: platform},
			{PolicyAssignmentName: "B", RoleDefinitionID: reader, Scope: platform},
		},
	}
}

func newRunner() (*Runner, *fakeExecutor, *fakePrincipals, *fakeClock) {
	exec := &fakeExecutor{}
	principals := &fakePrincipals{notReady: map[string]int{}}
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &Runner{
		Executor:   exec,
		Principals: principals,
		Templates: Templates{
			PolicyAssignments: "templates/policyAssignments.json",
			RoleAssignments:   "templates/roleAssignments.json",
			Parameters:        "templates/parameters.json",
		},
		Location:         "westeurope",
		ReadinessTimeout: 10 * time.Second,
		PollInterval:     time.Second,
		Clock:            clk,
	}, exec, principals, clk
}

func TestDeployScopeTwoPhases(t *testing.T) {
	r, exec, principals, clk := newRunner()
	verifier := &fakeRoles{}
	r.Roles = verifier
	principals.notReady["A"] = 2

	res, err := r.DeployScope(context.Background(), scopePlan())
	require.NoError(t, err)

	require.Len(t, exec.requests, 2)
	policy, role := exec.requests[0], exec.requests[1]
	assert.Equal(t, ScopeManagementGroup, policy.Kind)
	assert.Equal(t, "contoso-platform", policy.ManagementGroupID)
	assert.Equal(t, "westeurope", policy.Location)
	assert.Equal(t, "templates/policyAssignments.json", policy.TemplatePath)
	assert.Equal(t, "templates/parameters.json", policy.ParametersPath)
	assert.Len(t, policy.Overrides[PolicyAssignmentsParameter], 2)
	assert.True(t, strings.HasPrefix(policy.Name, "alz-policy-"))

	assert.True(t, strings.HasPrefix(role.Name, "alz-roles-"))
	payload, ok := role.Overrides[RoleAssignmentsParameter].([]types.RoleAssignment)
	require.True(t, ok)
	require.Len(t, payload, 3)
	assert.Equal(t, "principal-A", payload[0].PrincipalID)
	assert.Equal(t, "principal-A", payload[1].PrincipalID)
	assert.Equal(t, "principal-B", payload[2].PrincipalID)

	assert.Equal(t, map[string]int{"A": 3, "B": 1}, principals.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.waits)
	assert.Equal(t, []string{reader, writer}, verifier.verified)

	assert.Equal(t, policy.Name, res.PolicyDeployment)
	assert.Equal(t, role.Name, res.RoleDeployment)
	assert.Equal(t, map[string]string{"A": "principal-A", "B": "principal-B"}, res.Principals)
	assert.Contains(t, res.String(), "3 role assignment(s)")
}

func TestDeployScopeLeavesPlanUntouched(t *testing.T) {
	r, _, _, _ := newRunner()
	sp := scopePlan()
	_, err := r.DeployScope(context.Background(), sp)
	require.NoError(t, err)
	for _, ra := range sp.RoleAssignments {
		assert.Empty(t, ra.PrincipalID)
	}
}

func TestDeployScopeWithoutRoles(t *testing.T) {
	r, exec, principals, _ := newRunner()
	sp := scopePlan()
	sp.RoleAssignments = nil

	res, err := r.DeployScope(context.Background(), sp)
	require.NoError(t, err)
	assert.Len(t, exec.requests, 1)
	assert.Empty(t, principals.calls)
	assert.Empty(t, res.RoleDeployment)
	assert.Contains(t, res.String(), "via -")
}

func TestDeployScopeTestMode(t *testing.T) {
	r, exec, _, clk := newRunner()
	r.TestMode = true
	r.Principals = nil

	_, err := r.DeployScope(context.Background(), scopePlan())
	require.NoError(t, err)
	require.Len(t, exec.requests, 2)
	for _, req := range exec.requests {
		assert.True(t, req.TestMode)
	}
	payload := exec.requests[1].Overrides[RoleAssignmentsParameter].([]types.RoleAssignment)
	assert.Empty(t, payload[0].PrincipalID)
	assert.Empty(t, clk.waits)
}

func TestDeployScopeIdentityTimeout(t *testing.T) {
	r, exec, principals, clk := newRunner()
	r.ReadinessTimeout = 5 * time.Second
	principals.notReady["A"] = 100

	_, err := r.DeployScope(context.Background(), scopePlan())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Timeout))
	assert.Contains(t, err.Error(), "waiting for identity of A")
	assert.Len(t, exec.requests, 1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.waits)
}

func TestDeployScopePrincipalReadFailure(t *testing.T) {
	r, exec, principals, clk := newRunner()
	principals.err = errors.Forbiddenf("reading assignment")

	_, err := r.DeployScope(context.Background(), scopePlan())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Forbidden))
	assert.Len(t, exec.requests, 1)
	assert.Empty(t, clk.waits)
}

func TestDeployScopeUnknownRole(t *testing.T) {
	r, exec, principals, _ := newRunner()
	r.Roles = &fakeRoles{missing: writer}

	_, err := r.DeployScope(context.Background(), scopePlan())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Len(t, exec.requests, 1)
	assert.Empty(t, principals.calls)
}

func TestDeployScopeExecutorFailure(t *testing.T) {
	r, exec, _, _ := newRunner()
	exec.failOn = "alz-policy-"

	_, err := r.DeployScope(context.Background(), scopePlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment failed")
	assert.Len(t, exec.requests, 1)
}

func TestRunStopsAtFirstFailingScope(t *testing.T) {
	r, exec, _, _ := newRunner()
	second := scopePlan()
	second.ManagementGroupID = "contoso-corp"
	second.Scope = corp
	second.RoleAssignments = nil
	third := second
	third.ManagementGroupID = ""

	results, err := r.Run(context.Background(), types.Plan{Scopes: []types.ScopePlan{scopePlan(), second, third}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
	require.Len(t, results, 2)
	assert.Equal(t, platform, results[0].Scope)
	assert.Equal(t, corp, results[1].Scope)
	assert.Len(t, exec.requests, 3)
}

func TestRunnerValidation(t *testing.T) {
	cases := map[string]func(*Runner){
		"executor":   func(r *Runner) { r.Executor = nil },
		"templates":  func(r *Runner) { r.Templates.RoleAssignments = "" },
		"location":   func(r *Runner) { r.Location = "" },
		"principals": func(r *Runner) { r.Principals = nil },
	}
	for name, mutate := range cases {
		r, _, _, _ := newRunner()
		mutate(r)
		_, err := r.Run(context.Background(), types.Plan{})
		assert.True(t, errors.Is(err, errors.NotValid), name)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := []Request{
		{Kind: ScopeManagementGroup, ManagementGroupID: "mg", Name: "n", Location: "l", TemplatePath: "t"},
		{Kind: ScopeTenant, Name: "n", Location: "l", TemplatePath: "t"},
		{Kind: ScopeSubscription, SubscriptionID: "s", Name: "n", Location: "l", TemplatePath: "t"},
		{Kind: ScopeResourceGroup, SubscriptionID: "s", ResourceGroup: "rg", Name: "n", TemplatePath: "t"},
	}
	for _, req := range valid {
		assert.NoError(t, req.Validate(), string(req.Kind))
	}

	invalid := []Request{
		{Kind: ScopeManagementGroup, Name: "n", Location: "l", TemplatePath: "t"},
		{Kind: ScopeTenant, Location: "l", TemplatePath: "t"},
		{Kind: ScopeTenant, Name: "n", Location: "l"},
		{Kind: ScopeTenant, Name: "n", TemplatePath: "t"},
		{Kind: ScopeSubscription, Name: "n", Location: "l", TemplatePath: "t"},
		{Kind: ScopeResourceGroup, SubscriptionID: "s", Name: "n", TemplatePath: "t"},
		{Kind: "cluster", Name: "n", Location: "l", TemplatePath: "t"},
	}
	for i, req := range invalid {
		assert.True(t, errors.Is(req.Validate(), errors.NotValid), "case %d", i)
	}
}

func TestRequestScopeID(t *testing.T) {
	assert.Equal(t, platform, Request{Kind: ScopeManagementGroup, ManagementGroupID: "contoso-platform"}.ScopeID())
	assert.Equal(t, "/", Request{Kind: ScopeTenant}.ScopeID())
	assert.Equal(t, "/subscriptions/s", Request{Kind: ScopeSubscription, SubscriptionID: "s"}.ScopeID())
	assert.Equal(t, "/subscriptions/s/resourceGroups/rg", Request{Kind: ScopeResourceGroup, SubscriptionID: "s", ResourceGroup: "rg"}.ScopeID())
}

func TestDeploymentName(t *testing.T) {
	a, err := DeploymentName("policy", platform, "templates/policyAssignments.json")
	require.NoError(t, err)
	b, err := DeploymentName("policy", platform, "templates/policyAssignments.json")
	require.NoError(t, err)
	c, err := DeploymentName("policy", corp, "templates/policyAssignments.json")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("alz-policy-")+2*deploymentNameChars)
	assert.LessOrEqual(t, len(a), 64)
}
