package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armpolicy"
)

type assignmentsAPI interface {
	Get(ctx context.Context, scope string, policyAssignmentName string, options *armpolicy.AssignmentsClientGetOptions) (armpolicy.AssignmentsClientGetResponse, error)
}

// PrincipalReader reads the system assigned identity of policy
// assignments. It implements deploy.PrincipalReader.
type PrincipalReader struct {
	assignments assignmentsAPI
	caller      apiCaller
}

// PrincipalID returns the principal id of the assignment identity, or an
// empty string while ARM has not populated it yet. A missing assignment is
// a NotFound error.
func (r *PrincipalReader) PrincipalID(ctx context.Context, scope, assignmentName string) (string, error) {
	var resp armpolicy.AssignmentsClientGetResponse
	err := r.caller.call(ctx, "reading policy assignment "+assignmentName, func() (err error) {
		resp, err = r.assignments.Get(ctx, scope, assignmentName, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	if resp.Identity == nil || resp.Identity.PrincipalID == nil {
		return "", nil
	}
	return *resp.Identity.PrincipalID, nil
}
