package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/church-attendance-api/internal/models"
	"github.com/noah-isme/church-attendance-api/pkg/database"
)

const attendanceFactColumns = `id, member_id, date, in_church, in_service, in_meeting, entity, entity_id, has_conflict, notify_pending, created_at, updated_at`

// QueryObserver receives query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// AttendanceRepository reads and updates attendance facts.
type AttendanceRepository struct {
	db       *sqlx.DB
	observer QueryObserver
	now      func() time.Time
}

// NewAttendanceRepository constructs the repository; observer may be nil.
func NewAttendanceRepository(db *sqlx.DB, observer QueryObserver) *AttendanceRepository {
	return &AttendanceRepository{db: db, observer: observer, now: time.Now}
}

func (r *AttendanceRepository) observe(label string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDBQuery(label, time.Since(start))
	}
}

// ListByMembers returns facts of the given members inside the filter window.
func (r *AttendanceRepository) ListByMembers(ctx context.Context, filter models.AttendanceFactFilter) ([]models.AttendanceFact, error) {
	if len(filter.MemberIDs) == 0 {
		return []models.AttendanceFact{}, nil
	}
	defer r.observe("attendance.list_by_members", time.Now())

	args := []interface{}{pq.Array(filter.MemberIDs)}
	where := []string{"member_id = ANY($1)"}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		where = append(where, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, models.DayKey(filter.From))
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, models.DayKey(filter.To))
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_facts WHERE %s ORDER BY member_id, date, created_at, id`,
		attendanceFactColumns, strings.Join(where, " AND "))

	facts := make([]models.AttendanceFact, 0)
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance facts: %w", err)
	}
	return facts, nil
}

// ListForMember returns the member's tribe and department facts in date, creation order.
func (r *AttendanceRepository) ListForMember(ctx context.Context, memberID string) ([]models.AttendanceFact, error) {
	defer r.observe("attendance.list_for_member", time.Now())
	query := `SELECT ` + attendanceFactColumns + ` FROM attendance_facts
	WHERE member_id = $1 AND entity IN ('TRIBE', 'DEPARTMENT')
	ORDER BY date, created_at, id`
	facts := make([]models.AttendanceFact, 0)
	if err := r.db.SelectContext(ctx, &facts, query, memberID); err != nil {
		return nil, fmt.Errorf("list member attendance facts: %w", err)
	}
	return facts, nil
}

type lockedPresence struct {
	ID       string `db:"id"`
	InChurch *bool  `db:"in_church"`
}

// MarkConflict flags both facts inside one transaction and leaves their notification pending.
// The rows are locked and re-read first; it returns false without writing when they no longer disagree.
func (r *AttendanceRepository) MarkConflict(ctx context.Context, tribeFactID, departmentFactID string) (bool, error) {
	defer r.observe("attendance.mark_conflict", time.Now())
	marked := false
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var rows []lockedPresence
		const lock = `SELECT id, in_church FROM attendance_facts WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
		if err := tx.SelectContext(ctx, &rows, lock, tribeFactID, departmentFactID); err != nil {
			return fmt.Errorf("lock attendance facts: %w", err)
		}
		if len(rows) != 2 || rows[0].InChurch == nil || rows[1].InChurch == nil || *rows[0].InChurch == *rows[1].InChurch {
			return nil
		}
		const update = `UPDATE attendance_facts SET has_conflict = TRUE, notify_pending = TRUE, updated_at = $3 WHERE id IN ($1, $2)`
		if _, err := tx.ExecContext(ctx, update, tribeFactID, departmentFactID, r.now().UTC()); err != nil {
			return fmt.Errorf("flag attendance conflict: %w", err)
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

// MarkNotified clears the pending notification of a flagged pair.
func (r *AttendanceRepository) MarkNotified(ctx context.Context, tribeFactID, departmentFactID string) error {
	defer r.observe("attendance.mark_notified", time.Now())
	const query = `UPDATE attendance_facts SET notify_pending = FALSE, updated_at = $3 WHERE id IN ($1, $2) AND notify_pending`
	if _, err := r.db.ExecContext(ctx, query, tribeFactID, departmentFactID, r.now().UTC()); err != nil {
		return fmt.Errorf("clear conflict notification: %w", err)
	}
	return nil
}

// ResolveConflict sets the agreed in_church value on both facts and clears their flags atomically.
// It returns sql.ErrNoRows when the facts do not form a tribe/department pair of the member on that date,
// or when the pair lies outside the entity scope of params.
func (r *AttendanceRepository) ResolveConflict(ctx context.Context, params models.ResolveConflictParams) ([]models.AttendanceFact, error) {
	defer r.observe("attendance.resolve_conflict", time.Now())
	var resolved []models.AttendanceFact
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		lock := `SELECT ` + attendanceFactColumns + ` FROM attendance_facts
		WHERE id IN ($1, $2) AND member_id = $3 AND date = $4::date
		ORDER BY id FOR UPDATE`
		var facts []models.AttendanceFact
		if err := tx.SelectContext(ctx, &facts, lock, params.TribeFactID, params.DepartmentFactID, params.MemberID, models.DayKey(params.Date)); err != nil {
			return fmt.Errorf("lock conflict facts: %w", err)
		}
		if !isConflictPair(facts, params) {
			return sql.ErrNoRows
		}

		now := r.now().UTC()
		const update = `UPDATE attendance_facts SET in_church = $1, has_conflict = FALSE, notify_pending = FALSE, updated_at = $2 WHERE id = $3`
		for i := range facts {
			res, err := tx.ExecContext(ctx, update, params.Value, now, facts[i].ID)
			if err != nil {
				return fmt.Errorf("update attendance fact %s: %w", facts[i].ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n != 1 {
				return sql.ErrNoRows
			}
			facts[i].InChurch = models.BoolPtr(params.Value)
			facts[i].HasConflict = false
			facts[i].NotifyPending = false
			facts[i].UpdatedAt = now
		}
		resolved = facts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func isConflictPair(facts []models.AttendanceFact, params models.ResolveConflictParams) bool {
	if len(facts) != 2 {
		return false
	}
	var tribe, department bool
	for _, fact := range facts {
		if params.Entity != "" && fact.Entity == params.Entity && fact.EntityID != params.EntityID {
			return false
		}
		switch {
		case fact.ID == params.TribeFactID && fact.Entity == models.EntityTribe:
			tribe = true
		case fact.ID == params.DepartmentFactID && fact.Entity == models.EntityDepartment:
			department = true
		}
	}
	return tribe && department
}

type conflictRow struct {
	MemberID           string    `db:"member_id"`
	MemberName         string    `db:"member_name"`
	Date               time.Time `db:"date"`
	TribeFactID        string    `db:"tribe_fact_id"`
	TribeEntityID      string    `db:"tribe_entity_id"`
	TribeInChurch      *bool     `db:"tribe_in_church"`
	DepartmentFactID   string    `db:"department_fact_id"`
	DepartmentEntityID string    `db:"department_entity_id"`
	DepartmentInChurch *bool     `db:"department_in_church"`
}

func (row conflictRow) toCase() models.ConflictCase {
	return models.ConflictCase{
		MemberID:   row.MemberID,
		MemberName: row.MemberName,
		Date:       row.Date,
		TribeFact: models.AttendanceFact{
			ID: row.TribeFactID, MemberID: row.MemberID, Date: row.Date, InChurch: row.TribeInChurch,
			Entity: models.EntityTribe, EntityID: row.TribeEntityID, HasConflict: true,
		},
		DepartmentFact: models.AttendanceFact{
			ID: row.DepartmentFactID, MemberID: row.MemberID, Date: row.Date, InChurch: row.DepartmentInChurch,
			Entity: models.EntityDepartment, EntityID: row.DepartmentEntityID, HasConflict: true,
		},
	}
}

// ListConflicts returns flagged tribe/department pairs, newest first, with the total count.
func (r *AttendanceRepository) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictCase, int, error) {
	defer r.observe("attendance.list_conflicts", time.Now())
	base := `FROM attendance_facts t
JOIN attendance_facts d ON d.member_id = t.member_id AND d.date = t.date AND d.entity = 'DEPARTMENT' AND d.has_conflict
JOIN members m ON m.id = t.member_id`
	where := []string{"t.entity = 'TRIBE'", "t.has_conflict"}
	args := []interface{}{}
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("t.member_id = $%d", len(args)))
	}
	switch filter.Entity {
	case models.EntityTribe:
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("t.entity_id = $%d", len(args)))
	case models.EntityDepartment:
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("d.entity_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, models.DayKey(*filter.From))
		where = append(where, fmt.Sprintf("t.date >= $%d::date", len(args)))
	}
	if filter.To != nil {
		args = append(args, models.DayKey(*filter.To))
		where = append(where, fmt.Sprintf("t.date <= $%d::date", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count conflicts: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT t.member_id, m.full_name AS member_name, t.date,
       t.id AS tribe_fact_id, t.entity_id AS tribe_entity_id, t.in_church AS tribe_in_church,
       d.id AS department_fact_id, d.entity_id AS department_entity_id, d.in_church AS department_in_church
%s WHERE %s ORDER BY t.date DESC, t.member_id LIMIT $%d OFFSET $%d`, base, whereClause, len(args)-1, len(args))

	var rows []conflictRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list conflicts: %w", err)
	}
	cases := make([]models.ConflictCase, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, row.toCase())
	}
	return cases, total, nil
}
