package catalog

import (
	"fmt"
	"strings"
)

// ManagementGroupScope returns the resource id of a management group.
func ManagementGroupScope(managementGroupID string) string {
	return fmt.Sprintf(managementGroupScopeFmt, managementGroupID)
}

// CustomDefinitionID is the id of a custom policy definition stored at the
// given management group.
func CustomDefinitionID(managementGroupID, name string) string {
	return ManagementGroupScope(managementGroupID) + fmt.Sprintf(definitionPathFmt, name)
}

// CustomSetDefinitionID is the id of a custom policy set definition stored
// at the given management group.
func CustomSetDefinitionID(managementGroupID, name string) string {
	return ManagementGroupScope(managementGroupID) + fmt.Sprintf(setDefinitionPathFmt, name)
}

// IsResourceID reports whether ref is already a fully qualified id rather
// than a bare definition name.
func IsResourceID(ref string) bool {
	return strings.HasPrefix(ref, "/")
}
