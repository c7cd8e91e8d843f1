package dto

import (
	"time"

	"github.com/noah-isme/church-attendance-api/internal/models"
)

// StatisticsRequest captures filters for regularity statistics.
type StatisticsRequest struct {
	Entity    models.Entity         `json:"entity" validate:"required,entity"`
	EntityID  string                `json:"entity_id" validate:"required"`
	Month     string                `json:"month" validate:"required,datetime=2006-01"`
	Kind      models.AttendanceKind `json:"kind" validate:"omitempty,attendance_kind"`
	Breakdown bool                  `json:"breakdown"`
}

// StatisticsResponse is the rendered statistics payload: zero-count buckets are omitted.
type StatisticsResponse struct {
	Entity   models.Entity             `json:"entity"`
	EntityID string                    `json:"entity_id"`
	Kind     models.AttendanceKind     `json:"kind"`
	Month    string                    `json:"month"`
	Total    int                       `json:"total"`
	Overall  []models.RegularityBucket `json:"overall"`
	New      []models.RegularityBucket `json:"new,omitempty"`
	Old      []models.RegularityBucket `json:"old,omitempty"`
	Members  []models.MemberRegularity `json:"members"`
}

// ExportStatisticsRequest asks for a rendered statistics file.
type ExportStatisticsRequest struct {
	StatisticsRequest
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse returns the signed download link of a generated file.
type ExportResponse struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConflictListRequest filters open conflicts for review.
type ConflictListRequest struct {
	MemberID string     `json:"member_id"`
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`

	// Entity and EntityID scope a manager to the conflicts of their own tribe or department.
	Entity   models.Entity `json:"-"`
	EntityID string        `json:"-"`
}

// ResolveConflictRequest carries the values agreed by a human for both facts.
type ResolveConflictRequest struct {
	MemberID         string `json:"member_id" validate:"required"`
	TribeFactID      string `json:"tribe_fact_id" validate:"required"`
	DepartmentFactID string `json:"department_fact_id" validate:"required,nefield=TribeFactID"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	TribeValue       *bool  `json:"tribe_value" validate:"required"`
	DepartmentValue  *bool  `json:"department_value" validate:"required"`

	Entity   models.Entity `json:"-"`
	EntityID string        `json:"-"`
}

// SweepResponse acknowledges a manually triggered sweep.
type SweepResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
