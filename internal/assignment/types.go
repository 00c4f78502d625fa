package assignment

// Descriptor is one policy assignment record as written by operators.
// Exactly one of PolicyDefinition and PolicySetDefinition is set.
type Descriptor struct {
	PolicyDefinition        string         `yaml:"policyDefinition"`
	PolicySetDefinition     string         `yaml:"policySetDefinition"`
	DisplayName             string         `yaml:"displayName"`
	Description             string         `yaml:"description"`
	ManagementGroupIDSuffix *string        `yaml:"managementGroupIdSuffix"`
	Parameters              map[string]any `yaml:"parameters"`
	NotScopes               []string       `yaml:"notScopes"`
	UseIdentity             bool           `yaml:"useIdentity"`
	UAMI                    string         `yaml:"uami"`
	EnforcementMode         string         `yaml:"enforcementMode"`

	// Source identifies where the record came from, as "file#index".
	Source string `yaml:"-"`
}

// Assignment is a descriptor after token substitution, id resolution and
// naming. It is not modified after enrichment.
type Assignment struct {
	Name                   string
	DisplayName            string
	Description            string
	ManagementGroupID      string
	Scope                  string
	PolicyDefinitionID     string
	PolicySetDefinitionID  string
	Parameters             map[string]any
	NotScopes              []string
	UseIdentity            bool
	UserAssignedIdentityID string
	EnforcementMode        string
	Source                 string
}

// DefinitionID is the policy id, or the policy set id for initiatives.
func (a Assignment) DefinitionID() string {
	if a.PolicyDefinitionID != "" {
		return a.PolicyDefinitionID
	}
	return a.PolicySetDefinitionID
}

func (a Assignment) IsSet() bool {
	return a.PolicySetDefinitionID != ""
}

// NeedsRoleAssignments reports whether the assignment gets a system assigned
// identity whose roles this tool has to grant. User assigned identities are
// provisioned with their roles elsewhere.
func (a Assignment) NeedsRoleAssignments() bool {
	return a.UseIdentity && a.UserAssignedIdentityID == ""
}
