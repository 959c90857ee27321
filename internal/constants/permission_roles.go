package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:            {Auditor, Operator, Admin},
	ManageProjects:      {Admin},
	AssignQuotas:        {Operator, Admin},
	AllocateUnits:       {Operator, Admin},
	IssueCertificates:   {Admin},
	ManageInventory:     {Operator, Admin},
	ManageInvestors:     {Operator, Admin},
	ViewOwnCertificates: {Investor},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
