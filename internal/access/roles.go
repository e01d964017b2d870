package access

// Built-in role names.
const (
	RoleSystemAdmin            = "system_admin"
	RoleGlobalEngineer         = "global_engineer"
	RoleRegionalEngineer       = "regional_engineer"
	RoleRegionalGeneralManager = "regional_general_manager"
	RoleProjectEngineer        = "project_engineer"
	RoleDistrictEngineer       = "district_engineer"
	RoleDistrictManager        = "district_manager"
	RoleTechnician             = "technician"
	RoleAshantiSubtransmission = "ashsubt"
	RoleAccraSubtransmission   = "accsubt"
)

// Class groups roles that share a scoping rule.
type Class string

const (
	ClassGlobal   Class = "global"
	ClassRegional Class = "regional"
	ClassDistrict Class = "district"
	ClassGroup    Class = "group"
	ClassCustom   Class = "custom"
	ClassUnknown  Class = "unknown"
)

var builtinClasses = map[string]Class{
	RoleSystemAdmin:            ClassGlobal,
	RoleGlobalEngineer:         ClassGlobal,
	RoleRegionalEngineer:       ClassRegional,
	RoleRegionalGeneralManager: ClassRegional,
	RoleProjectEngineer:        ClassRegional,
	RoleDistrictEngineer:       ClassDistrict,
	RoleDistrictManager:        ClassDistrict,
	RoleTechnician:             ClassDistrict,
	RoleAshantiSubtransmission: ClassGroup,
	RoleAccraSubtransmission:   ClassGroup,
}

// Subtransmission region groups. Membership is fixed.
var (
	AshantiSubtransmissionRegions = []string{
		"SUBTRANSMISSION ASHANTI",
		"ASHANTI EAST REGION",
		"ASHANTI WEST REGION",
		"ASHANTI SOUTH REGION",
	}
	AccraSubtransmissionRegions = []string{
		"SUBTRANSMISSION ACCRA",
		"ACCRA EAST REGION",
		"ACCRA WEST REGION",
	}
)

var groupRegions = map[string][]string{
	RoleAshantiSubtransmission: AshantiSubtransmissionRegions,
	RoleAccraSubtransmission:   AccraSubtransmissionRegions,
}

// ClassOf returns the built-in class of a role, or ClassUnknown.
func ClassOf(role string) Class {
	if c, ok := builtinClasses[role]; ok {
		return c
	}
	return ClassUnknown
}

// IsBuiltin reports whether role is one of the fixed roles.
func IsBuiltin(role string) bool {
	_, ok := builtinClasses[role]
	return ok
}

// Principal is the authenticated caller.
type Principal struct {
	UserID   string `json:"userId,omitempty"`
	Role     string `json:"role"`
	Region   string `json:"region,omitempty"`
	District string `json:"district,omitempty"`
}

// IsAdmin reports whether the principal administers users, roles and reference data.
func (p Principal) IsAdmin() bool { return p.Role == RoleSystemAdmin }

// CanManageTargets reports whether the principal may create or delete targets.
func (p Principal) CanManageTargets() bool {
	return p.Role == RoleSystemAdmin || p.Role == RoleGlobalEngineer
}
