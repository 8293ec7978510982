package models

import "strings"

// Caller is the authenticated identity behind an API call.
type Caller struct {
	UserID   int64
	RoleID   int64
	RoleName string
}

// Capability is a permission checked by routes, granted through role names.
type Capability string

const (
	CapManageUsers    Capability = "ManageUsers"
	CapViewAudit      Capability = "ViewAudit"
	CapAssignRequests Capability = "AssignRequests"
)

var roleCapabilities = map[string][]Capability{
	strings.ToLower(RoleAdministrator): {CapManageUsers, CapViewAudit, CapAssignRequests},
	strings.ToLower(RoleSupervisor):    {CapAssignRequests},
}

// Can reports whether the caller's role grants c.
func (c Caller) Can(capability Capability) bool {
	for _, granted := range roleCapabilities[strings.ToLower(strings.TrimSpace(c.RoleName))] {
		if granted == capability {
			return true
		}
	}
	return false
}
