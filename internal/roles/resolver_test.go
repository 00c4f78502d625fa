package roles

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/alzpolicy/internal/assignment"
	"github.com/davidahmann/alzpolicy/internal/catalog"
)

const (
	p1 = "/providers/Microsoft.Authorization/policyDefinitions/p1"
	p2 = "/providers/Microsoft.Authorization/policyDefinitions/p2"
	p3 = "/providers/Microsoft.Authorization/policyDefinitions/p3"
	s  = "/providers/Microsoft.Management/managementGroups/contoso/providers/Microsoft.Authorization/policySetDefinitions/S"

	r1 = "/providers/Microsoft.Authorization/roleDefinitions/r1"
	r2 = "/providers/Microsoft.Authorization/roleDefinitions/r2"

	scope = "/providers/Microsoft.Management/managementGroups/contoso"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.PutDefinition(catalog.PolicyDefinition{ID: p1, RoleDefinitionIDs: []string{r1}}))
	require.NoError(t, cat.PutDefinition(catalog.PolicyDefinition{ID: p2, RoleDefinitionIDs: []string{r1, r2}}))
	require.NoError(t, cat.PutDefinition(catalog.PolicyDefinition{ID: p3}))
	require.NoError(t, cat.PutSetDefinition(catalog.PolicySetDefinition{ID: s, PolicyDefinitionIDs: []string{p1, p2}}))
	return cat
}

func setAssignment(name string) assignment.Assignment {
	return assignment.Assignment{Name: name, Scope: scope, PolicySetDefinitionID: s, UseIdentity: true}
}

func TestResolveSetDeduplicatesRoles(t *testing.T) {
	reqs, err := Resolve([]assignment.Assignment{setAssignment("A")}, testCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, []Requirement{
		{RoleDefinitionID: r1, AssignmentName: "A", Scope: scope},
		{RoleDefinitionID: r2, AssignmentName: "A", Scope: scope},
	}, reqs)
}

func TestResolveDeduplicatesRoleCase(t *testing.T) {
	cat := testCatalog(t)
	require.NoError(t, cat.PutDefinition(catalog.PolicyDefinition{ID: p3, RoleDefinitionIDs: []string{"/PROVIDERS/Microsoft.Authorization/roleDefinitions/R1"}}))
	require.NoError(t, cat.PutSetDefinition(catalog.PolicySetDefinition{ID: s, PolicyDefinitionIDs: []string{p1, p3}}))

	reqs, err := Resolve([]assignment.Assignment{setAssignment("A")}, cat)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, r1, reqs[0].RoleDefinitionID)
}

func TestResolveSamePairAcrossAssignments(t *testing.T) {
	a := assignment.Assignment{Name: "A", Scope: scope, PolicyDefinitionID: p1, UseIdentity: true}
	b := assignment.Assignment{Name: "B", Scope: scope, PolicyDefinitionID: p2, UseIdentity: true}

	reqs, err := Resolve([]assignment.Assignment{a, b, a}, testCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, []Requirement{
		{RoleDefinitionID: r1, AssignmentName: "A", Scope: scope},
		{RoleDefinitionID: r1, AssignmentName: "B", Scope: scope},
		{RoleDefinitionID: r2, AssignmentName: "B", Scope: scope},
	}, reqs)
}

func TestResolveSkipsNonQualifying(t *testing.T) {
	noIdentity := setAssignment("A")
	noIdentity.UseIdentity = false
	userAssigned := setAssignment("B")
	userAssigned.UserAssignedIdentityID = "/subscriptions/1/resourceGroups/rg/providers/Microsoft.ManagedIdentity/userAssignedIdentities/id"

	reqs, err := Resolve([]assignment.Assignment{noIdentity, userAssigned}, testCatalog(t))
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestResolveEmptyRoles(t *testing.T) {
	a := assignment.Assignment{Name: "A", Scope: scope, PolicyDefinitionID: p3, UseIdentity: true}
	reqs, err := Resolve([]assignment.Assignment{a}, testCatalog(t))
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestResolveLookupMiss(t *testing.T) {
	missing := assignment.Assignment{
		Name: "A", DisplayName: "Missing", Scope: scope, UseIdentity: true, Source: "a.yaml#3",
		PolicyDefinitionID: "/providers/Microsoft.Authorization/policyDefinitions/nope",
	}
	_, err := Resolve([]assignment.Assignment{missing}, testCatalog(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Contains(t, err.Error(), "a.yaml#3")
	assert.Contains(t, err.Error(), "policyDefinitions/nope")

	r := Resolver{Catalog: testCatalog(t), Lenient: true}
	reqs, err := r.Resolve([]assignment.Assignment{missing, setAssignment("B")})
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
}

func TestResolveMissingSetMember(t *testing.T) {
	cat := testCatalog(t)
	require.NoError(t, cat.PutSetDefinition(catalog.PolicySetDefinition{ID: s, PolicyDefinitionIDs: []string{p1, "/providers/Microsoft.Authorization/policyDefinitions/gone", p2}}))

	_, err := Resolve([]assignment.Assignment{setAssignment("A")}, cat)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Contains(t, err.Error(), "gone")

	r := Resolver{Catalog: cat, Lenient: true}
	reqs, err := r.Resolve([]assignment.Assignment{setAssignment("A")})
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
}

func TestResolveNilCatalog(t *testing.T) {
	_, err := Resolve(nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestResolveIsDeterministic(t *testing.T) {
	in := []assignment.Assignment{setAssignment("A"), setAssignment("B")}
	first, err := Resolve(in, testCatalog(t))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Resolve(in, testCatalog(t))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRoleDefinitionIDs(t *testing.T) {
	reqs := []Requirement{
		{RoleDefinitionID: r2, AssignmentName: "A"},
		{RoleDefinitionID: r1, AssignmentName: "A"},
		{RoleDefinitionID: "/providers/Microsoft.Authorization/roleDefinitions/R2", AssignmentName: "B"},
	}
	assert.Equal(t, []string{r2, r1}, RoleDefinitionIDs(reqs))
}
