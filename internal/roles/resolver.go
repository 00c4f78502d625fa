package roles

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/davidahmann/alzpolicy/internal/assignment"
	"github.com/davidahmann/alzpolicy/internal/catalog"
)

var logger = loggo.GetLogger("alzpolicy.roles")

// Requirement is a role the managed identity of an assignment must hold.
type Requirement struct {
	RoleDefinitionID string
	AssignmentName   string
	// Scope is the scope of the owning assignment, which is also where the
	// role is granted.
	Scope string
}

type pair struct {
	role       string
	assignment string
}

// Resolver computes role requirements against one catalog.
type Resolver struct {
	Catalog *catalog.Catalog
	// Lenient turns catalog misses into warnings. The affected definition
	// contributes no roles.
	Lenient bool
}

// Resolve is Resolver.Resolve with strict lookups.
func Resolve(assignments []assignment.Assignment, cat *catalog.Catalog) ([]Requirement, error) {
	r := Resolver{Catalog: cat}
	return r.Resolve(assignments)
}

// Resolve returns the deduplicated role requirements of every assignment
// that gets a system assigned identity. The result follows assignment order,
// then set member order, then the order roles appear in each definition.
func (r *Resolver) Resolve(assignments []assignment.Assignment) ([]Requirement, error) {
	if r.Catalog == nil {
		return nil, errors.NotValidf("nil catalog")
	}
	acc := &accumulator{seen: mapset.NewThreadUnsafeSet[pair]()}
	for _, a := range assignments {
		if !a.NeedsRoleAssignments() {
			continue
		}
		if err := r.resolveOne(acc, a); err != nil {
			return nil, errors.Annotatef(err, "assignment %s (display name %q, scope %q, definition %q, from %s)",
				a.Name, a.DisplayName, a.Scope, a.DefinitionID(), a.Source)
		}
	}
	return acc.out, nil
}

func (r *Resolver) resolveOne(acc *accumulator, a assignment.Assignment) error {
	if !a.IsSet() {
		def, err := r.Catalog.Definition(a.PolicyDefinitionID)
		if err != nil {
			return r.miss(err, a)
		}
		acc.add(a, def.RoleDefinitionIDs)
		return nil
	}

	set, err := r.Catalog.SetDefinition(a.PolicySetDefinitionID)
	if err != nil {
		return r.miss(err, a)
	}
	for _, memberID := range set.PolicyDefinitionIDs {
		def, err := r.Catalog.Definition(memberID)
		if err != nil {
			if err := r.miss(err, a); err != nil {
				return errors.Annotatef(err, "member of %s", set.ID)
			}
			continue
		}
		acc.add(a, def.RoleDefinitionIDs)
	}
	return nil
}

func (r *Resolver) miss(err error, a assignment.Assignment) error {
	if r.Lenient && errors.Is(err, errors.NotFound) {
		logger.Warningf("assignment %s at %s: %v; no roles taken from it", a.Name, a.Scope, err)
		return nil
	}
	return errors.Trace(err)
}

type accumulator struct {
	seen mapset.Set[pair]
	out  []Requirement
}

// add appends a requirement per role unless the (role, assignment) pair was
// emitted before. Role ids are resource ids and compare case-insensitively.
func (acc *accumulator) add(a assignment.Assignment, roleIDs []string) {
	for _, roleID := range roleIDs {
		roleID = strings.TrimSpace(roleID)
		if roleID == "" {
			continue
		}
		if !acc.seen.Add(pair{role: strings.ToLower(roleID), assignment: a.Name}) {
			continue
		}
		acc.out = append(acc.out, Requirement{
			RoleDefinitionID: roleID,
			AssignmentName:   a.Name,
			Scope:            a.Scope,
		})
	}
}

// RoleDefinitionIDs lists the distinct role definition ids in reqs, in
// first-appearance order.
func RoleDefinitionIDs(reqs []Requirement) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, req := range reqs {
		if seen.Add(strings.ToLower(req.RoleDefinitionID)) {
			out = append(out, req.RoleDefinitionID)
		}
	}
	return out
}
