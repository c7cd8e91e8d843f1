package models

import "time"

// ConflictCase pairs a tribe fact and a department fact for the same member and day
// whose in-church values disagree.
type ConflictCase struct {
	MemberID       string         `json:"member_id"`
	MemberName     string         `json:"member_name,omitempty"`
	Date           time.Time      `json:"date"`
	TribeFact      AttendanceFact `json:"tribe_fact"`
	DepartmentFact AttendanceFact `json:"department_fact"`
}

// AlreadyFlagged reports whether both facts already carry the conflict flag.
func (c ConflictCase) AlreadyFlagged() bool {
	return c.TribeFact.HasConflict && c.DepartmentFact.HasConflict
}

// NotificationPending reports whether the conflict is flagged but its manager has not been notified yet.
func (c ConflictCase) NotificationPending() bool {
	return c.AlreadyFlagged() && (c.TribeFact.NotifyPending || c.DepartmentFact.NotifyPending)
}

// ConflictFilter scopes listing of open conflicts.
type ConflictFilter struct {
	MemberID string
	// Entity and EntityID restrict results to pairs whose fact of that entity belongs to EntityID.
	Entity   Entity
	EntityID string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ResolveConflictParams carries the agreed value for both facts of a conflict.
type ResolveConflictParams struct {
	MemberID         string
	TribeFactID      string
	DepartmentFactID string
	Date             time.Time
	Value            bool

	// Entity and EntityID, when set, require the pair's fact of that entity to belong to EntityID.
	Entity   Entity
	EntityID string
}

// SweepResult summarises one conflict sweep batch.
type SweepResult struct {
	Members   int            `json:"members"`
	Conflicts []ConflictCase `json:"conflicts"`
	Flagged   int            `json:"flagged"`
	Failures  int            `json:"failures"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}
