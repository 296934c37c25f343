package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitewalk/internal/domain"
)

func (r Repo) InsertMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,project_id,name,description,position,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Name, nullable(m.Description), m.Order, boolToInt(m.IsActive), m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	var m domain.Milestone
	var desc sql.NullString
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,description,position,is_active,created_at,updated_at FROM milestones WHERE id=?`, id).
		Scan(&m.ID, &m.ProjectID, &m.Name, &desc, &m.Order, &active, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if desc.Valid {
		m.Description = desc.String
	}
	m.IsActive = active != 0
	return m, nil
}

// ListMilestones returns the project's milestones ordered by position, each
// with its checklist items attached in their own position order.
func (r Repo) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,COALESCE(description,'') AS description,position,is_active,created_at,updated_at
FROM milestones WHERE project_id=? ORDER BY position ASC, created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		var active int
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &m.Order, &active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.IsActive = active != 0
		m.Items = []domain.ChecklistItem{}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		items, err := r.ListChecklistItems(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Items = items
	}
	return res, nil
}

type MilestoneUpdate struct {
	Name        *string
	Description *string
	Order       *int
	IsActive    *bool
}

func (r Repo) UpdateMilestone(ctx context.Context, tx *sql.Tx, id string, u MilestoneUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.Order != nil {
		fields = append(fields, "position=?")
		args = append(args, *u.Order)
	}
	if u.IsActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, boolToInt(*u.IsActive))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE milestones SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMilestoneCascade removes the milestone together with its checklist
// items and every inspection (and responses) targeting it. Statement order
// respects foreign keys: responses, inspections, items, milestone. The
// caller owns the transaction so the cascade is all-or-nothing.
func (r Repo) DeleteMilestoneCascade(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM inspection_responses WHERE inspection_id IN (SELECT id FROM inspections WHERE milestone_id=?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inspections WHERE milestone_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE milestone_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertChecklistItem(ctx context.Context, tx *sql.Tx, it domain.ChecklistItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(id,milestone_id,title,description,position,is_required,is_photo_required,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		it.ID, it.MilestoneID, it.Title, nullable(it.Description), it.Order, boolToInt(it.IsRequired), boolToInt(it.IsPhotoRequired), it.CreatedAt)
	return err
}

func (r Repo) GetChecklistItem(ctx context.Context, id string) (domain.ChecklistItem, error) {
	var it domain.ChecklistItem
	var desc sql.NullString
	var required, photo int
	err := r.DB.QueryRowContext(ctx, `SELECT id,milestone_id,title,description,position,is_required,is_photo_required,created_at FROM checklist_items WHERE id=?`, id).
		Scan(&it.ID, &it.MilestoneID, &it.Title, &desc, &it.Order, &required, &photo, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	if desc.Valid {
		it.Description = desc.String
	}
	it.IsRequired = required != 0
	it.IsPhotoRequired = photo != 0
	return it, nil
}

func (r Repo) ListChecklistItems(ctx context.Context, milestoneID string) ([]domain.ChecklistItem, error) {
	return r.listChecklistItems(ctx, r.DB.QueryContext, milestoneID)
}

// ListChecklistItemsTx reads the checklist inside the caller's transaction
// so completeness validation and the response inserts see one snapshot.
func (r Repo) ListChecklistItemsTx(ctx context.Context, tx *sql.Tx, milestoneID string) ([]domain.ChecklistItem, error) {
	return r.listChecklistItems(ctx, tx.QueryContext, milestoneID)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listChecklistItems(ctx context.Context, query queryFunc, milestoneID string) ([]domain.ChecklistItem, error) {
	rows, err := query(ctx, `SELECT id,milestone_id,title,COALESCE(description,'') AS description,position,is_required,is_photo_required,created_at
FROM checklist_items WHERE milestone_id=? ORDER BY position ASC, created_at ASC, id ASC`, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var it domain.ChecklistItem
		var required, photo int
		if err := rows.Scan(&it.ID, &it.MilestoneID, &it.Title, &it.Description, &it.Order, &required, &photo, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.IsRequired = required != 0
		it.IsPhotoRequired = photo != 0
		res = append(res, it)
	}
	return res, rows.Err()
}

type ChecklistItemUpdate struct {
	Title           *string
	Description     *string
	Order           *int
	IsRequired      *bool
	IsPhotoRequired *bool
}

func (r Repo) UpdateChecklistItem(ctx context.Context, tx *sql.Tx, id string, u ChecklistItemUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.Order != nil {
		fields = append(fields, "position=?")
		args = append(args, *u.Order)
	}
	if u.IsRequired != nil {
		fields = append(fields, "is_required=?")
		args = append(args, boolToInt(*u.IsRequired))
	}
	if u.IsPhotoRequired != nil {
		fields = append(fields, "is_photo_required=?")
		args = append(args, boolToInt(*u.IsPhotoRequired))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE checklist_items SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteChecklistItem(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM inspection_responses WHERE checklist_item_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
