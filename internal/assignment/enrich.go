package assignment

import (
	"context"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/davidahmann/alzpolicy/internal/catalog"
	"github.com/davidahmann/alzpolicy/internal/naming"
)

var logger = loggo.GetLogger("alzpolicy.assignment")

// ResourceIDSuffix marks a parameter whose value names a resource that has to
// be replaced by the resource's full id.
const ResourceIDSuffix = "___ID"

var enforcementModes = map[string]string{
	"":             "Default",
	"default":      "Default",
	"donotenforce": "DoNotEnforce",
}

// ResourceLookup resolves a resource name to its resource id.
type ResourceLookup interface {
	ResourceID(ctx context.Context, name string) (string, error)
}

// IdentityChecker verifies that a user assigned identity exists.
type IdentityChecker interface {
	CheckUserAssignedIdentity(ctx context.Context, id string) error
}

// Enricher turns descriptors into assignments.
type Enricher struct {
	// Organization is the top-level management group id. Custom definitions
	// live there and descriptor scopes are derived from it.
	Organization string
	Tokens       Tokens

	// Lookup is required only when descriptors use ___ID parameters.
	Lookup ResourceLookup
	// Identities is optional; when nil uami values are not checked.
	Identities IdentityChecker
}

// Enrich validates one descriptor and computes its derived fields.
func (e *Enricher) Enrich(ctx context.Context, d Descriptor) (Assignment, error) {
	a, err := e.enrich(ctx, d)
	if err != nil {
		return Assignment{}, &DescriptorError{
			Source:      d.Source,
			DisplayName: d.DisplayName,
			Scope:       a.Scope,
			Definition:  firstNonEmpty(d.PolicyDefinition, d.PolicySetDefinition),
			Err:         err,
		}
	}
	return a, nil
}

// EnrichAll enriches every descriptor. Assignments that succeeded are
// returned even when others failed; the failures come back as a
// *BatchError so callers can decide between aborting and carrying on.
func (e *Enricher) EnrichAll(ctx context.Context, descs []Descriptor) ([]Assignment, error) {
	var (
		out  []Assignment
		errs []error
		seen = make(map[string]string)
	)
	for _, d := range descs {
		a, err := e.Enrich(ctx, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(a.Scope + "/" + a.Name)
		if prev, ok := seen[key]; ok {
			errs = append(errs, &DescriptorError{
				Source:      d.Source,
				DisplayName: d.DisplayName,
				Scope:       a.Scope,
				Definition:  a.DefinitionID(),
				Err:         errors.AlreadyExistsf("assignment %q (also produced by %s)", a.Name, prev),
			})
			continue
		}
		seen[key] = d.Source
		out = append(out, a)
	}
	if len(errs) > 0 {
		return out, &BatchError{Errors: errs}
	}
	return out, nil
}

func (e *Enricher) enrich(ctx context.Context, d Descriptor) (Assignment, error) {
	if e.Organization == "" {
		return Assignment{}, errors.NotValidf("empty organization")
	}
	sub := substituter{r: e.Tokens.replacer()}

	if d.ManagementGroupIDSuffix == nil {
		return Assignment{}, errors.NotValidf("missing managementGroupIdSuffix (scope)")
	}
	suffix, err := sub.str(*d.ManagementGroupIDSuffix)
	if err != nil {
		return Assignment{}, errors.Trace(err)
	}
	a := Assignment{
		ManagementGroupID: e.Organization + suffix,
		UseIdentity:       d.UseIdentity,
		Source:            d.Source,
	}
	a.Scope = catalog.ManagementGroupScope(a.ManagementGroupID)

	policyRef := strings.TrimSpace(d.PolicyDefinition)
	setRef := strings.TrimSpace(d.PolicySetDefinition)
	switch {
	case policyRef == "" && setRef == "":
		return a, errors.NotValidf("missing policyDefinition or policySetDefinition")
	case policyRef != "" && setRef != "":
		return a, errors.NotValidf("both policyDefinition and policySetDefinition set")
	case policyRef != "":
		ref, err := sub.str(policyRef)
		if err != nil {
			return a, errors.Trace(err)
		}
		a.PolicyDefinitionID = e.definitionID(ref, catalog.CustomDefinitionID)
	default:
		ref, err := sub.str(setRef)
		if err != nil {
			return a, errors.Trace(err)
		}
		a.PolicySetDefinitionID = e.definitionID(ref, catalog.CustomSetDefinitionID)
	}

	if a.DisplayName, err = sub.str(strings.TrimSpace(d.DisplayName)); err != nil {
		return a, errors.Trace(err)
	}
	if a.DisplayName == "" {
		return a, errors.NotValidf("missing displayName")
	}
	if a.Description, err = sub.str(d.Description); err != nil {
		return a, errors.Trace(err)
	}
	if a.NotScopes, err = sub.strs(d.NotScopes); err != nil {
		return a, errors.Trace(err)
	}

	mode, ok := enforcementModes[strings.ToLower(d.EnforcementMode)]
	if !ok {
		return a, errors.NotValidf("enforcementMode %q", d.EnforcementMode)
	}
	a.EnforcementMode = mode

	if d.UAMI != "" {
		if !d.UseIdentity {
			logger.Debugf("%s: uami given without useIdentity, attaching it anyway", d.Source)
		}
		if a.UserAssignedIdentityID, err = sub.str(d.UAMI); err != nil {
			return a, errors.Trace(err)
		}
		if e.Identities != nil {
			if err := e.Identities.CheckUserAssignedIdentity(ctx, a.UserAssignedIdentityID); err != nil {
				return a, errors.Annotatef(err, "checking uami %q", a.UserAssignedIdentityID)
			}
		}
	}

	if a.Parameters, err = e.parameters(ctx, sub, d.Parameters); err != nil {
		return a, errors.Trace(err)
	}

	if a.Name, err = naming.AssignmentName(a.Scope, a.DefinitionID(), a.DisplayName); err != nil {
		return a, errors.Trace(err)
	}
	logger.Debugf("%s: %q -> %s at %s", d.Source, a.DisplayName, a.Name, a.Scope)
	return a, nil
}

func (e *Enricher) definitionID(ref string, custom func(string, string) string) string {
	if catalog.IsResourceID(ref) {
		return ref
	}
	return custom(e.Organization, ref)
}

func (e *Enricher) parameters(ctx context.Context, sub substituter, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := sub.value(in[name])
		if err != nil {
			return nil, errors.Annotatef(err, "parameter %q", name)
		}
		if !strings.HasSuffix(name, ResourceIDSuffix) {
			out[name] = value
			continue
		}

		target := strings.TrimSuffix(name, ResourceIDSuffix)
		if target == "" {
			return nil, errors.NotValidf("parameter name %q", name)
		}
		resourceName, ok := value.(string)
		if !ok || resourceName == "" {
			return nil, errors.NotValidf("parameter %q value (want a resource name)", name)
		}
		if e.Lookup == nil {
			return nil, errors.NotSupportedf("resolving parameter %q without a resource lookup", name)
		}
		id, err := e.Lookup.ResourceID(ctx, resourceName)
		if err != nil {
			return nil, errors.Annotatef(err, "resolving parameter %q", name)
		}
		if _, clash := in[target]; clash {
			return nil, errors.NotValidf("parameter %q given both directly and as %q", target, name)
		}
		out[target] = id
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
