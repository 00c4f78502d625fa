package plan

import (
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/davidahmann/alzpolicy/internal/assignment"
	"github.com/davidahmann/alzpolicy/internal/canonical"
	"github.com/davidahmann/alzpolicy/internal/roles"
	"github.com/davidahmann/alzpolicy/pkg/types"
)

const Schema = "alzpolicy.plan.v1"

type Options struct {
	Organization string
	// Location is set on assignments that carry an identity.
	Location        string
	DescriptorsHash string
	CreatedAt       time.Time
}

// Build groups assignments by scope, in order of first appearance, and
// computes the payload digests and plan id.
func Build(assignments []assignment.Assignment, reqs []roles.Requirement, opts Options) (types.Plan, error) {
	p := types.Plan{
		Schema:          Schema,
		CreatedAt:       opts.CreatedAt.UTC().Format(time.RFC3339),
		Organization:    opts.Organization,
		Location:        opts.Location,
		DescriptorsHash: opts.DescriptorsHash,
		Scopes:          []types.ScopePlan{},
	}

	index := make(map[string]int)
	for _, a := range assignments {
		key := strings.ToLower(a.Scope)
		i, ok := index[key]
		if !ok {
			i = len(p.Scopes)
			index[key] = i
			p.Scopes = append(p.Scopes, types.ScopePlan{
				ManagementGroupID: a.ManagementGroupID,
				Scope:             a.Scope,
				PolicyAssignments: []types.PolicyAssignment{},
				RoleAssignments:   []types.RoleAssignment{},
			})
		}
		p.Scopes[i].PolicyAssignments = append(p.Scopes[i].PolicyAssignments, PolicyAssignmentPayload(a, opts.Location))
	}

	for _, req := range reqs {
		i, ok := index[strings.ToLower(req.Scope)]
		if !ok {
			return types.Plan{}, errors.NotValidf("role requirement for %s at %s without assignments at that scope", req.AssignmentName, req.Scope)
		}
		p.Scopes[i].RoleAssignments = append(p.Scopes[i].RoleAssignments, types.RoleAssignment{
			PolicyAssignmentName: req.AssignmentName,
			RoleDefinitionID:     req.RoleDefinitionID,
			Scope:                req.Scope,
		})
	}

	if err := Seal(&p); err != nil {
		return types.Plan{}, errors.Trace(err)
	}
	return p, nil
}

// PolicyAssignmentPayload converts an assignment to its template form.
func PolicyAssignmentPayload(a assignment.Assignment, location string) types.PolicyAssignment {
	out := types.PolicyAssignment{
		Name:               a.Name,
		DisplayName:        a.DisplayName,
		Description:        a.Description,
		PolicyDefinitionID: a.DefinitionID(),
		Parameters:         make(map[string]types.ParameterValue, len(a.Parameters)),
		NotScopes:          a.NotScopes,
		EnforcementMode:    a.EnforcementMode,
	}
	if out.NotScopes == nil {
		out.NotScopes = []string{}
	}
	for name, value := range a.Parameters {
		out.Parameters[name] = types.ParameterValue{Value: value}
	}
	switch {
	case a.UserAssignedIdentityID != "":
		out.Identity = &types.Identity{
			Type:                   types.IdentityUserAssigned,
			UserAssignedIdentities: map[string]struct{}{a.UserAssignedIdentityID: {}},
		}
		out.Location = location
	case a.UseIdentity:
		out.Identity = &types.Identity{Type: types.IdentitySystemAssigned}
		out.Location = location
	}
	return out
}

// Seal recomputes the payload digests and the plan id.
func Seal(p *types.Plan) error {
	for i := range p.Scopes {
		sp := &p.Scopes[i]
		_, digest, err := canonical.MarshalDigest(sp.PolicyAssignments)
		if err != nil {
			return errors.Annotatef(err, "policy assignments at %s", sp.Scope)
		}
		sp.PolicyAssignmentsDigest = digest
		if _, digest, err = canonical.MarshalDigest(sp.RoleAssignments); err != nil {
			return errors.Annotatef(err, "role assignments at %s", sp.Scope)
		}
		sp.RoleAssignmentsDigest = digest
	}
	id, err := planID(*p)
	if err != nil {
		return errors.Trace(err)
	}
	p.PlanID = id
	return nil
}

func planID(p types.Plan) (string, error) {
	view := map[string]any{
		"schema":           p.Schema,
		"organization":     p.Organization,
		"location":         p.Location,
		"descriptors_hash": p.DescriptorsHash,
		"scopes":           p.Scopes,
	}
	_, digest, err := canonical.MarshalDigest(view)
	return digest, err
}
