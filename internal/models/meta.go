package models

// Country is a CARICOM member agency.
type Country struct {
	ID          int64  `json:"id" example:"2"`
	Name        string `json:"name" example:"Jamaica"`
	AgencyName  string `json:"agency_name" example:"National Insurance Scheme"`
	CountryCode string `json:"country_code" example:"JM"`
}

// BenefitType describes a category of pension benefit.
type BenefitType struct {
	ID          int64  `json:"id" example:"1"`
	Name        string `json:"name" example:"Old Age Pension"`
	Description string `json:"description" example:"Pension paid to qualifying elderly contributors."`
}

// Role is a user role.
type Role struct {
	ID   int64  `json:"id" example:"1"`
	Name string `json:"name" example:"Administrator"`
}

// Office is a national insurance office. Its country drives the requesting
// country of requests filed by its users.
type Office struct {
	ID        int64  `json:"office_id"`
	Name      string `json:"office_name"`
	CountryID int64  `json:"country_id"`
	Email     string `json:"email,omitempty"`
}

// Countries is the fixed list of participating agencies.
var Countries = []Country{
	{ID: 1, Name: "Barbados", AgencyName: "National Insurance Board", CountryCode: "BB"},
	{ID: 2, Name: "Jamaica", AgencyName: "National Insurance Scheme", CountryCode: "JM"},
	{ID: 3, Name: "Trinidad & Tobago", AgencyName: "National Insurance Board", CountryCode: "TT"},
	{ID: 4, Name: "St. Lucia", AgencyName: "National Insurance Corporation", CountryCode: "LC"},
	{ID: 5, Name: "Grenada", AgencyName: "National Insurance Scheme", CountryCode: "GD"},
	{ID: 6, Name: "Belize", AgencyName: "Social Security Board", CountryCode: "BZ"},
	{ID: 7, Name: "Antigua & Barbuda", AgencyName: "Social Security Board", CountryCode: "AG"},
	{ID: 8, Name: "Guyana", AgencyName: "National Insurance Scheme", CountryCode: "GY"},
}

// BenefitTypes is the fixed benefit catalogue.
var BenefitTypes = []BenefitType{
	{ID: 1, Name: "Old Age Pension", Description: "Pension paid to qualifying elderly contributors."},
	{ID: 2, Name: "Survivors Benefit", Description: "Benefits paid to survivors of a deceased contributor."},
	{ID: 3, Name: "Invalidity Benefit", Description: "Support for contributors with permanent disability."},
	{ID: 4, Name: "Other", Description: "Other benefit categories."},
}

// Role names seeded with the schema.
const (
	RoleAdministrator   = "Administrator"
	RoleSupervisor      = "Supervisor"
	RoleOfficer         = "Officer"
	RoleExternalOfficer = "External Officer"
)

// DefaultRoles mirrors the seeded roles table.
var DefaultRoles = []Role{
	{ID: 1, Name: RoleAdministrator},
	{ID: 2, Name: RoleSupervisor},
	{ID: 3, Name: RoleOfficer},
	{ID: 4, Name: RoleExternalOfficer},
}

// LookupBenefitType returns the descriptor for id. Unknown ids keep the id
// with an empty name and description.
func LookupBenefitType(id int64) BenefitType {
	for _, bt := range BenefitTypes {
		if bt.ID == id {
			return bt
		}
	}
	return BenefitType{ID: id}
}
