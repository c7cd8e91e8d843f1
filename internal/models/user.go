package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin        UserRole = "SUPERADMIN"
	RoleAdmin             UserRole = "ADMIN"
	RoleTribeManager      UserRole = "TRIBE_MANAGER"
	RoleDepartmentManager UserRole = "DEPARTMENT_MANAGER"
	RoleMember            UserRole = "MEMBER"
)

// IsManager reports whether the role manages an organisational entity.
func (r UserRole) IsManager() bool {
	return r == RoleTribeManager || r == RoleDepartmentManager
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
