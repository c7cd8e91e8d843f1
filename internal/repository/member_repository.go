package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/church-attendance-api/internal/models"
)

const memberColumns = `id, full_name, tribe_id, department_id, honor_family_id, created_at`

var entityMemberColumn = map[models.Entity]string{
	models.EntityTribe:       "tribe_id",
	models.EntityDepartment:  "department_id",
	models.EntityHonorFamily: "honor_family_id",
}

var entityTable = map[models.Entity]string{
	models.EntityTribe:       "tribes",
	models.EntityDepartment:  "departments",
	models.EntityHonorFamily: "honor_families",
}

// MemberRepository reads members and their entity managers.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// ListByEntity returns the current members of one tribe, department or honor family.
func (r *MemberRepository) ListByEntity(ctx context.Context, entity models.Entity, entityID string) ([]models.Member, error) {
	column, ok := entityMemberColumn[entity]
	if !ok {
		return nil, fmt.Errorf("list members: unsupported entity %q", entity)
	}
	query := fmt.Sprintf(`SELECT %s FROM members WHERE %s = $1 ORDER BY full_name, id`, memberColumns, column)
	members := make([]models.Member, 0)
	if err := r.db.SelectContext(ctx, &members, query, entityID); err != nil {
		return nil, fmt.Errorf("list members by entity: %w", err)
	}
	return members, nil
}

// ListWithBothEntities returns members reporting through a tribe and a department.
func (r *MemberRepository) ListWithBothEntities(ctx context.Context) ([]models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
	WHERE tribe_id IS NOT NULL AND department_id IS NOT NULL
	ORDER BY id`
	members := make([]models.Member, 0)
	if err := r.db.SelectContext(ctx, &members, query); err != nil {
		return nil, fmt.Errorf("list members with tribe and department: %w", err)
	}
	return members, nil
}

// ManagerFor returns the managing user of an entity, or sql.ErrNoRows when none is assigned.
func (r *MemberRepository) ManagerFor(ctx context.Context, entity models.Entity, entityID string) (*models.EntityManager, error) {
	table, ok := entityTable[entity]
	if !ok {
		return nil, fmt.Errorf("manager lookup: unsupported entity %q", entity)
	}
	query := fmt.Sprintf(`SELECT $2::text AS entity, e.id AS entity_id, u.id AS user_id, u.full_name AS name
	FROM %s e JOIN users u ON u.id = e.manager_id
	WHERE e.id = $1`, table)
	var manager models.EntityManager
	if err := r.db.GetContext(ctx, &manager, query, entityID, string(entity)); err != nil {
		return nil, err
	}
	return &manager, nil
}
