package types

// Plan is the document written by "alzpolicy plan" and executed by
// "alzpolicy deploy -plan".
type Plan struct {
	Schema          string      `json:"schema"`
	PlanID          string      `json:"plan_id"`
	CreatedAt       string      `json:"created_at"`
	Organization    string      `json:"organization"`
	Location        string      `json:"location"`
	DescriptorsHash string      `json:"descriptors_hash,omitempty"`
	Scopes          []ScopePlan `json:"scopes"`
}

// ScopePlan holds the two deployment payloads of one management group.
type ScopePlan struct {
	ManagementGroupID       string             `json:"management_group_id"`
	Scope                   string             `json:"scope"`
	PolicyAssignments       []PolicyAssignment `json:"policy_assignments"`
	PolicyAssignmentsDigest string             `json:"policy_assignments_digest"`
	RoleAssignments         []RoleAssignment   `json:"role_assignments"`
	RoleAssignmentsDigest   string             `json:"role_assignments_digest"`
}

// PolicyAssignment is one element of the policyAssignments template
// parameter.
type PolicyAssignment struct {
	Name               string                    `json:"name"`
	DisplayName        string                    `json:"displayName"`
	Description        string                    `json:"description,omitempty"`
	PolicyDefinitionID string                    `json:"policyDefinitionId"`
	Parameters         map[string]ParameterValue `json:"parameters"`
	NotScopes          []string                  `json:"notScopes"`
	EnforcementMode    string                    `json:"enforcementMode"`
	Location           string                    `json:"location,omitempty"`
	Identity           *Identity                 `json:"identity,omitempty"`
}

type ParameterValue struct {
	Value any `json:"value"`
}

// Identity types accepted by policy assignments.
const (
	IdentitySystemAssigned = "SystemAssigned"
	IdentityUserAssigned   = "UserAssigned"
)

type Identity struct {
	Type                   string              `json:"type"`
	UserAssignedIdentities map[string]struct{} `json:"userAssignedIdentities,omitempty"`
}

// RoleAssignment is one element of the roleAssignments template parameter.
// PrincipalID is filled in at deploy time, once the assignment identity
// exists.
type RoleAssignment struct {
	PolicyAssignmentName string `json:"policyAssignmentName"`
	RoleDefinitionID     string `json:"roleDefinitionId"`
	Scope                string `json:"scope"`
	PrincipalID          string `json:"principalId,omitempty"`
}
