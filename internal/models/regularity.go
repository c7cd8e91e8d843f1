package models

import "time"

// RegularityState buckets how consistently a member attended over a period.
type RegularityState string

const (
	RegularityVeryRegular   RegularityState = "VERY_REGULAR"
	RegularityRegular       RegularityState = "REGULAR"
	RegularityMediumRegular RegularityState = "MEDIUM_REGULAR"
	RegularityLittleRegular RegularityState = "LITTLE_REGULAR"
	RegularityAbsent        RegularityState = "ABSENT"
)

// RegularityStates lists every state from most to least regular.
func RegularityStates() []RegularityState {
	return []RegularityState{
		RegularityVeryRegular,
		RegularityRegular,
		RegularityMediumRegular,
		RegularityLittleRegular,
		RegularityAbsent,
	}
}

// MonthlyAttendanceSummary is derived from facts and never persisted.
type MonthlyAttendanceSummary struct {
	Attendance int `json:"attendance"`
	Sundays    int `json:"sundays"`
}

// RegularityBucket counts members in one state.
type RegularityBucket struct {
	State      RegularityState `json:"state"`
	Count      int             `json:"count"`
	Percentage int             `json:"percentage"`
}

// RegularityBreakdown holds the five raw buckets for a population.
type RegularityBreakdown struct {
	Total   int                `json:"total"`
	Buckets []RegularityBucket `json:"buckets"`
}

// Visible drops zero-count buckets for rendering.
func (b RegularityBreakdown) Visible() []RegularityBucket {
	out := make([]RegularityBucket, 0, len(b.Buckets))
	for _, bucket := range b.Buckets {
		if bucket.Count > 0 {
			out = append(out, bucket)
		}
	}
	return out
}

// Count returns the member count for state.
func (b RegularityBreakdown) Count(state RegularityState) int {
	for _, bucket := range b.Buckets {
		if bucket.State == state {
			return bucket.Count
		}
	}
	return 0
}

// MemberRegularity is the per-member line of a statistics report.
type MemberRegularity struct {
	MemberID   string          `json:"member_id"`
	FullName   string          `json:"full_name"`
	Attendance int             `json:"attendance"`
	Sundays    int             `json:"sundays"`
	State      RegularityState `json:"state"`
	IsNew      bool            `json:"is_new"`
}

// StatisticsReport aggregates regularity for an entity over a window.
type StatisticsReport struct {
	Entity      Entity               `json:"entity,omitempty"`
	EntityID    string               `json:"entity_id,omitempty"`
	Kind        AttendanceKind       `json:"kind"`
	Window      DateRange            `json:"window"`
	Overall     RegularityBreakdown  `json:"overall"`
	New         *RegularityBreakdown `json:"new,omitempty"`
	Old         *RegularityBreakdown `json:"old,omitempty"`
	Members     []MemberRegularity   `json:"members"`
	GeneratedAt time.Time            `json:"generated_at"`
}
