package catalog

import "strings"

const (
	managementGroupScopeFmt = "/providers/Microsoft.Management/managementGroups/%s"
	definitionPathFmt       = "/providers/Microsoft.Authorization/policyDefinitions/%s"
	setDefinitionPathFmt    = "/providers/Microsoft.Authorization/policySetDefinitions/%s"

	definitionType    = "microsoft.authorization/policydefinitions"
	setDefinitionType = "microsoft.authorization/policysetdefinitions"
)

// PolicyDefinition is the part of a policy definition the role resolver
// needs: its id and the role definitions its effect requires.
type PolicyDefinition struct {
	ID                string
	RoleDefinitionIDs []string
}

// PolicySetDefinition is an initiative and its member policy ids, in
// definition order.
type PolicySetDefinition struct {
	ID                  string
	PolicyDefinitionIDs []string
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
