package constants

const (
	ViewData          = "view_data"
	ManageProjects    = "manage_projects"
	AssignQuotas      = "assign_quotas"
	AllocateUnits     = "allocate_units"
	IssueCertificates = "issue_certificates"
	ManageInventory   = "manage_inventory"
	ManageInvestors   = "manage_investors"
	// ViewOwnCertificates is the investor portal: only the session's own certificates.
	ViewOwnCertificates = "view_own_certificates"
)
