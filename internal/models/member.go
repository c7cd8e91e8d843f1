package models

import "time"

// Member is a congregation member with their current entity memberships.
// A member belongs to at most one tribe and one department at a time.
type Member struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	TribeID       *string   `db:"tribe_id" json:"tribe_id,omitempty"`
	DepartmentID  *string   `db:"department_id" json:"department_id,omitempty"`
	HonorFamilyID *string   `db:"honor_family_id" json:"honor_family_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// EntityID returns the member's current id for the given entity type.
func (m Member) EntityID(entity Entity) string {
	var id *string
	switch entity {
	case EntityTribe:
		id = m.TribeID
	case EntityDepartment:
		id = m.DepartmentID
	case EntityHonorFamily:
		id = m.HonorFamilyID
	}
	if id == nil {
		return ""
	}
	return *id
}

// HasBothEntities reports whether the member reports through a tribe and a department.
func (m Member) HasBothEntities() bool {
	return m.EntityID(EntityTribe) != "" && m.EntityID(EntityDepartment) != ""
}

// MemberAttendance pairs a member with attendance facts already fetched for them.
type MemberAttendance struct {
	Member Member           `json:"member"`
	Facts  []AttendanceFact `json:"facts"`
}

// EntityManager is the administrative user in charge of a tribe or department.
type EntityManager struct {
	Entity   Entity `db:"entity" json:"entity"`
	EntityID string `db:"entity_id" json:"entity_id"`
	UserID   string `db:"user_id" json:"user_id"`
	Name     string `db:"name" json:"name"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
