package plan

import (
	"encoding/json"
	"io"
	"os"

	"github.com/juju/errors"

	"github.com/davidahmann/alzpolicy/pkg/types"
)

func Write(w io.Writer, p types.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Trace(enc.Encode(p))
}

func WriteFile(path string, p types.Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err := Write(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Trace(f.Close())
}

// Read decodes a plan and checks that it was not edited after it was built.
func Read(r io.Reader) (types.Plan, error) {
	var p types.Plan
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return types.Plan{}, errors.Annotate(err, "decoding plan")
	}
	if err := Verify(p); err != nil {
		return types.Plan{}, err
	}
	return p, nil
}

func ReadFile(path string) (types.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Plan{}, errors.Trace(err)
	}
	defer f.Close()
	return Read(f)
}

// Verify recomputes the digests of p and compares them with the recorded
// ones.
func Verify(p types.Plan) error {
	if p.Schema != Schema {
		return errors.NotSupportedf("plan schema %q", p.Schema)
	}
	check := p
	check.Scopes = make([]types.ScopePlan, len(p.Scopes))
	copy(check.Scopes, p.Scopes)
	if err := Seal(&check); err != nil {
		return errors.Trace(err)
	}
	for i := range p.Scopes {
		if p.Scopes[i].PolicyAssignmentsDigest != check.Scopes[i].PolicyAssignmentsDigest ||
			p.Scopes[i].RoleAssignmentsDigest != check.Scopes[i].RoleAssignmentsDigest {
			return errors.NotValidf("plan payload digest for %s", p.Scopes[i].Scope)
		}
	}
	if p.PlanID != check.PlanID {
		return errors.NotValidf("plan id %s", p.PlanID)
	}
	return nil
}
