package constants

const (
	Admin    = "admin"
	Operator = "operator"
	Auditor  = "auditor"
	Investor = "investor"
)

// ValidRoles is the set of roles a session user may carry.
var ValidRoles = []string{Admin, Operator, Auditor, Investor}

func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
