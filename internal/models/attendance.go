package models

import "time"

// Entity identifies the organisational report an attendance fact belongs to.
type Entity string

const (
	EntityTribe       Entity = "TRIBE"
	EntityDepartment  Entity = "DEPARTMENT"
	EntityHonorFamily Entity = "HONOR_FAMILY"
)

// Valid returns true when the entity is a supported value.
func (e Entity) Valid() bool {
	switch e {
	case EntityTribe, EntityDepartment, EntityHonorFamily:
		return true
	default:
		return false
	}
}

// AttendanceKind selects which presence flag of a fact is measured.
type AttendanceKind string

const (
	AttendanceKindChurch  AttendanceKind = "CHURCH"
	AttendanceKindService AttendanceKind = "SERVICE"
	AttendanceKindMeeting AttendanceKind = "MEETING"
)

// Valid returns true when the kind is a supported value.
func (k AttendanceKind) Valid() bool {
	switch k {
	case AttendanceKindChurch, AttendanceKindService, AttendanceKindMeeting:
		return true
	default:
		return false
	}
}

// AttendanceFact is one member's presence on one date for one reporting entity.
// Presence flags are tri-state: nil means the question did not apply.
type AttendanceFact struct {
	ID          string    `db:"id" json:"id"`
	MemberID    string    `db:"member_id" json:"member_id"`
	Date        time.Time `db:"date" json:"date"`
	InChurch    *bool     `db:"in_church" json:"in_church"`
	InService   *bool     `db:"in_service" json:"in_service"`
	InMeeting   *bool     `db:"in_meeting" json:"in_meeting"`
	Entity      Entity    `db:"entity" json:"entity"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	HasConflict bool      `db:"has_conflict" json:"has_conflict"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// NotifyPending is set with the conflict flag and cleared once the manager notification is queued.
	NotifyPending bool `db:"notify_pending" json:"-"`
}

// Presence returns the flag measured by kind.
func (f AttendanceFact) Presence(kind AttendanceKind) *bool {
	switch kind {
	case AttendanceKindService:
		return f.InService
	case AttendanceKindMeeting:
		return f.InMeeting
	default:
		return f.InChurch
	}
}

// Day returns the fact's calendar day key (UTC, YYYY-MM-DD).
func (f AttendanceFact) Day() string {
	return DayKey(f.Date)
}

// DayKey formats t as a UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// AttendanceFactFilter scopes fact listing queries.
type AttendanceFactFilter struct {
	MemberIDs []string
	Entity    Entity
	EntityID  string
	From      time.Time
	To        time.Time
}

// DateRange is an inclusive calendar-day window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MonthWindow returns the window covering every day of the given month (UTC).
func MonthWindow(year int, month time.Month) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	return DateRange{From: from, To: to}
}

// Contains reports whether t falls on a day inside the window.
func (r DateRange) Contains(t time.Time) bool {
	day := truncateDay(t)
	return !day.Before(truncateDay(r.From)) && !day.After(truncateDay(r.To))
}

// Empty reports whether the window holds no day at all.
func (r DateRange) Empty() bool {
	return truncateDay(r.To).Before(truncateDay(r.From))
}

// Start returns the first day of the window at UTC midnight.
func (r DateRange) Start() time.Time { return truncateDay(r.From) }

// End returns the last day of the window at UTC midnight.
func (r DateRange) End() time.Time { return truncateDay(r.To) }

// DayStart returns t's calendar day at UTC midnight.
func DayStart(t time.Time) time.Time { return truncateDay(t) }

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
