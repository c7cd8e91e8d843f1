package service

import (
	"time"

	"github.com/noah-isme/church-attendance-api/internal/models"
)

// Classify maps a monthly summary to its regularity state. Attendance is clamped to
// [0, Sundays]; a summary without eligible Sundays is ABSENT.
func Classify(summary models.MonthlyAttendanceSummary) models.RegularityState {
	percentage := attendancePercentage(summary)
	switch {
	case percentage == 100:
		return models.RegularityVeryRegular
	case percentage >= 60:
		return models.RegularityRegular
	case percentage >= 50:
		return models.RegularityMediumRegular
	case percentage > 0:
		return models.RegularityLittleRegular
	default:
		return models.RegularityAbsent
	}
}

func attendancePercentage(summary models.MonthlyAttendanceSummary) float64 {
	if summary.Sundays <= 0 {
		return 0
	}
	attendance := summary.Attendance
	if attendance < 0 {
		attendance = 0
	}
	if attendance > summary.Sundays {
		attendance = summary.Sundays
	}
	return float64(attendance) * 100 / float64(summary.Sundays)
}

// CountSundays returns the number of Sundays inside the window.
func CountSundays(window models.DateRange) int {
	if window.Empty() {
		return 0
	}
	count := 0
	for day := window.Start(); !day.After(window.End()); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Sunday {
			count++
		}
	}
	return count
}

// CountWeeks returns the number of distinct ISO weeks touched by the window.
func CountWeeks(window models.DateRange) int {
	if window.Empty() {
		return 0
	}
	type isoWeek struct{ year, week int }
	seen := make(map[isoWeek]struct{})
	for day := window.Start(); !day.After(window.End()); day = day.AddDate(0, 0, 1) {
		y, w := day.ISOWeek()
		seen[isoWeek{y, w}] = struct{}{}
	}
	return len(seen)
}

// EligibleWindow narrows window to the days after a member joined.
func EligibleWindow(window models.DateRange, createdAt time.Time) models.DateRange {
	if createdAt.IsZero() {
		return window
	}
	joined := models.DayStart(createdAt)
	if joined.After(window.Start()) {
		return models.DateRange{From: joined, To: window.End()}
	}
	return window
}

func eligiblePeriods(window models.DateRange, kind models.AttendanceKind) int {
	if kind == models.AttendanceKindMeeting {
		return CountWeeks(window)
	}
	return CountSundays(window)
}

// Summarize reduces facts to attended days versus eligible Sundays (weeks for meetings).
// Several facts on the same day count once.
func Summarize(facts []models.AttendanceFact, window models.DateRange, kind models.AttendanceKind, createdAt time.Time) models.MonthlyAttendanceSummary {
	eligible := EligibleWindow(window, createdAt)
	summary := models.MonthlyAttendanceSummary{Sundays: eligiblePeriods(eligible, kind)}
	if eligible.Empty() {
		return summary
	}
	attended := make(map[string]struct{})
	for _, fact := range facts {
		if !eligible.Contains(fact.Date) {
			continue
		}
		if present := fact.Presence(kind); present != nil && *present {
			attended[fact.Day()] = struct{}{}
		}
	}
	summary.Attendance = len(attended)
	return summary
}

// AggregateOptions parameterises Aggregate.
type AggregateOptions struct {
	Window models.DateRange
	Kind   models.AttendanceKind
	// Entity/EntityID restrict facts to one report; empty means every fact counts.
	Entity    models.Entity
	EntityID  string
	Breakdown bool
}

// Aggregate classifies every member over the window and counts them per state. Members who joined
// after the window ends are left out of the report.
// Zero-count buckets are kept; use RegularityBreakdown.Visible for rendering.
func Aggregate(members []models.MemberAttendance, opts AggregateOptions) models.StatisticsReport {
	kind := opts.Kind
	if kind == "" {
		kind = models.AttendanceKindChurch
	}
	report := models.StatisticsReport{
		Entity:   opts.Entity,
		EntityID: opts.EntityID,
		Kind:     kind,
		Window:   opts.Window,
		Members:  make([]models.MemberRegularity, 0, len(members)),
	}

	overall := make(map[models.RegularityState]int)
	newCounts := make(map[models.RegularityState]int)
	oldCounts := make(map[models.RegularityState]int)
	var newTotal, oldTotal int
	windowEnd := opts.Window.End()

	for _, item := range members {
		if joinedAfter(item.Member.CreatedAt, windowEnd) {
			continue
		}
		facts := filterFacts(item.Facts, opts.Entity, opts.EntityID)
		summary := Summarize(facts, opts.Window, kind, item.Member.CreatedAt)
		state := Classify(summary)
		isNew := isNewMember(item.Member.CreatedAt, opts.Window)

		overall[state]++
		if isNew {
			newCounts[state]++
			newTotal++
		} else {
			oldCounts[state]++
			oldTotal++
		}
		report.Members = append(report.Members, models.MemberRegularity{
			MemberID:   item.Member.ID,
			FullName:   item.Member.FullName,
			Attendance: summary.Attendance,
			Sundays:    summary.Sundays,
			State:      state,
			IsNew:      isNew,
		})
	}

	report.Overall = buildBreakdown(overall, len(report.Members))
	if opts.Breakdown {
		newBreakdown := buildBreakdown(newCounts, newTotal)
		oldBreakdown := buildBreakdown(oldCounts, oldTotal)
		report.New = &newBreakdown
		report.Old = &oldBreakdown
	}
	return report
}

func filterFacts(facts []models.AttendanceFact, entity models.Entity, entityID string) []models.AttendanceFact {
	if entity == "" {
		return facts
	}
	out := make([]models.AttendanceFact, 0, len(facts))
	for _, fact := range facts {
		if fact.Entity != entity {
			continue
		}
		if entityID != "" && fact.EntityID != entityID {
			continue
		}
		out = append(out, fact)
	}
	return out
}

func joinedAfter(createdAt, day time.Time) bool {
	return !createdAt.IsZero() && models.DayStart(createdAt).After(day)
}

// isNewMember: joined during the month the window starts in, and not after the window.
func isNewMember(createdAt time.Time, window models.DateRange) bool {
	if createdAt.IsZero() {
		return false
	}
	start := window.Start()
	monthStart := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	joined := models.DayStart(createdAt)
	return !joined.Before(monthStart) && !joined.After(window.End())
}

func buildBreakdown(counts map[models.RegularityState]int, total int) models.RegularityBreakdown {
	states := models.RegularityStates()
	breakdown := models.RegularityBreakdown{Total: total, Buckets: make([]models.RegularityBucket, 0, len(states))}
	for _, state := range states {
		count := counts[state]
		breakdown.Buckets = append(breakdown.Buckets, models.RegularityBucket{
			State:      state,
			Count:      count,
			Percentage: roundPercent(count, total),
		})
	}
	return breakdown
}

// roundPercent returns count/total as a percentage rounded half up; 0 when total is 0.
func roundPercent(count, total int) int {
	if total <= 0 || count <= 0 {
		return 0
	}
	return (count*200 + total) / (2 * total)
}
