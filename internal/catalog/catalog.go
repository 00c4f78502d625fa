package catalog

import (
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
	"github.com/juju/errors"
)

// Catalog holds the policy and policy set definitions visible to one run.
// It is filled while loading and only read afterwards.
type Catalog struct {
	definitions    map[string]PolicyDefinition
	setDefinitions map[string]PolicySetDefinition
}

func New() *Catalog {
	return &Catalog{
		definitions:    make(map[string]PolicyDefinition),
		setDefinitions: make(map[string]PolicySetDefinition),
	}
}

// PutDefinition stores def, replacing any definition with the same id.
func (c *Catalog) PutDefinition(def PolicyDefinition) error {
	if def.ID == "" {
		return errors.NotValidf("policy definition without id")
	}
	c.definitions[normalizeID(def.ID)] = def
	return nil
}

// PutSetDefinition stores set, replacing any set with the same id.
func (c *Catalog) PutSetDefinition(set PolicySetDefinition) error {
	if set.ID == "" {
		return errors.NotValidf("policy set definition without id")
	}
	c.setDefinitions[normalizeID(set.ID)] = set
	return nil
}

// Definition looks up a policy definition by resource id.
func (c *Catalog) Definition(id string) (PolicyDefinition, error) {
	def, ok := c.definitions[normalizeID(id)]
	if !ok {
		return PolicyDefinition{}, errors.NotFoundf("policy definition %q", id)
	}
	return def, nil
}

// SetDefinition looks up a policy set definition by resource id.
func (c *Catalog) SetDefinition(id string) (PolicySetDefinition, error) {
	set, ok := c.setDefinitions[normalizeID(id)]
	if !ok {
		return PolicySetDefinition{}, errors.NotFoundf("policy set definition %q", id)
	}
	return set, nil
}

func (c *Catalog) DefinitionCount() int {
	return len(c.definitions)
}

func (c *Catalog) SetDefinitionCount() int {
	return len(c.setDefinitions)
}

// DefinitionFromARM converts an ARM policy definition. fallbackID is used
// when the ARM object carries no id, as is the case for definitions read
// from library files.
func DefinitionFromARM(def *armpolicy.Definition, fallbackID string) (PolicyDefinition, error) {
	if def == nil {
		return PolicyDefinition{}, errors.NotValidf("nil policy definition")
	}
	id := fallbackID
	if def.ID != nil && *def.ID != "" {
		id = *def.ID
	}
	if id == "" {
		return PolicyDefinition{}, errors.NotValidf("policy definition %q without id", stringValue(def.Name))
	}
	out := PolicyDefinition{ID: id}
	if def.Properties != nil {
		out.RoleDefinitionIDs = RequiredRoles(def.Properties.PolicyRule)
	}
	return out, nil
}

// SetDefinitionFromARM converts an ARM policy set definition.
func SetDefinitionFromARM(set *armpolicy.SetDefinition, fallbackID string) (PolicySetDefinition, error) {
	if set == nil {
		return PolicySetDefinition{}, errors.NotValidf("nil policy set definition")
	}
	id := fallbackID
	if set.ID != nil && *set.ID != "" {
		id = *set.ID
	}
	if id == "" {
		return PolicySetDefinition{}, errors.NotValidf("policy set definition %q without id", stringValue(set.Name))
	}
	out := PolicySetDefinition{ID: id}
	if set.Properties == nil {
		return out, nil
	}
	for _, ref := range set.Properties.PolicyDefinitions {
		if ref == nil || ref.PolicyDefinitionID == nil {
			continue
		}
		out.PolicyDefinitionIDs = append(out.PolicyDefinitionIDs, *ref.PolicyDefinitionID)
	}
	return out, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
