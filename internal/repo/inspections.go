package repo

import (
	"context"
	"database/sql"
	"strings"

	"sitewalk/internal/domain"
)

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, insp domain.Inspection) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO inspections(id,project_id,milestone_id,engineer_id,status,reviewer_id,created_at,submitted_at,reviewed_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		insp.ID, insp.ProjectID, insp.MilestoneID, insp.EngineerID, string(insp.Status),
		nullableStringPtr(insp.ReviewerID), insp.CreatedAt, nullableStringPtr(insp.SubmittedAt), nullableStringPtr(insp.ReviewedAt))
	return err
}

func (r Repo) InsertResponse(ctx context.Context, tx *sql.Tx, resp domain.InspectionResponse) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO inspection_responses(id,inspection_id,checklist_item_id,result,remark,media_id) VALUES (?,?,?,?,?,?)`,
		resp.ID, resp.InspectionID, resp.ChecklistItemID, string(resp.Result), nullable(resp.Remark), nullableStringPtr(resp.MediaID))
	return err
}

// MarkSubmitted and MarkReviewed guard the update with the expected
// current status so racing transitions cannot both win; a zero-row
// update means the row left that status after the caller read it.

func (r Repo) MarkSubmitted(ctx context.Context, tx *sql.Tx, id, submittedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE inspections SET status=?, submitted_at=? WHERE id=? AND status=?`,
		string(domain.InspectionSubmitted), submittedAt, id, string(domain.InspectionDraft))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r Repo) MarkReviewed(ctx context.Context, tx *sql.Tx, id, reviewerID, reviewedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE inspections SET status=?, reviewer_id=?, reviewed_at=? WHERE id=? AND status=?`,
		string(domain.InspectionReviewed), reviewerID, reviewedAt, id, string(domain.InspectionSubmitted))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// HasSubmittedInspectionTx is the application-level pre-check for the
// submitted-uniqueness invariant; the partial unique index remains the
// authoritative guard under concurrency.
func (r Repo) HasSubmittedInspectionTx(ctx context.Context, tx *sql.Tx, milestoneID, engineerID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM inspections WHERE milestone_id=? AND engineer_id=? AND status=? LIMIT 1`,
		milestoneID, engineerID, string(domain.InspectionSubmitted))
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) GetInspection(ctx context.Context, id string) (domain.Inspection, error) {
	var insp domain.Inspection
	var reviewerID, submittedAt, reviewedAt sql.NullString
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT i.id,i.project_id,i.milestone_id,m.name,i.engineer_id,i.status,i.reviewer_id,i.created_at,i.submitted_at,i.reviewed_at
FROM inspections i JOIN milestones m ON m.id=i.milestone_id WHERE i.id=?`, id).
		Scan(&insp.ID, &insp.ProjectID, &insp.MilestoneID, &insp.MilestoneName, &insp.EngineerID, &status, &reviewerID, &insp.CreatedAt, &submittedAt, &reviewedAt)
	if err == sql.ErrNoRows {
		return insp, ErrNotFound
	}
	if err != nil {
		return insp, err
	}
	insp.Status = domain.InspectionStatus(status)
	if reviewerID.Valid {
		insp.ReviewerID = &reviewerID.String
	}
	if submittedAt.Valid {
		insp.SubmittedAt = &submittedAt.String
	}
	if reviewedAt.Valid {
		insp.ReviewedAt = &reviewedAt.String
	}
	responses, err := r.listResponses(ctx, insp.ID)
	if err != nil {
		return insp, err
	}
	insp.Responses = responses
	return insp, nil
}

// listResponses hydrates each response with its checklist item and media,
// ordered by the item's position. Consumers must never rely on insert order.
func (r Repo) listResponses(ctx context.Context, inspectionID string) ([]domain.InspectionResponse, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT r.id,r.inspection_id,r.checklist_item_id,r.result,r.remark,r.media_id,
c.id,c.milestone_id,c.title,COALESCE(c.description,'') AS description,c.position,c.is_required,c.is_photo_required,c.created_at,
md.id,md.kind,md.url,md.uploaded_by,md.created_at
FROM inspection_responses r
JOIN checklist_items c ON c.id=r.checklist_item_id
LEFT JOIN media md ON md.id=r.media_id
WHERE r.inspection_id=?
ORDER BY c.position ASC, c.created_at ASC, c.id ASC`, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InspectionResponse
	for rows.Next() {
		var resp domain.InspectionResponse
		var result string
		var remark, mediaID sql.NullString
		var item domain.ChecklistItem
		var required, photo int
		var mID, mKind, mURL, mUploadedBy, mCreatedAt sql.NullString
		if err := rows.Scan(&resp.ID, &resp.InspectionID, &resp.ChecklistItemID, &result, &remark, &mediaID,
			&item.ID, &item.MilestoneID, &item.Title, &item.Description, &item.Order, &required, &photo, &item.CreatedAt,
			&mID, &mKind, &mURL, &mUploadedBy, &mCreatedAt); err != nil {
			return nil, err
		}
		resp.Result = domain.ResponseResult(result)
		if remark.Valid {
			resp.Remark = remark.String
		}
		if mediaID.Valid {
			resp.MediaID = &mediaID.String
		}
		item.IsRequired = required != 0
		item.IsPhotoRequired = photo != 0
		resp.Item = &item
		if mID.Valid {
			resp.Media = &domain.Media{
				ID:         mID.String,
				Kind:       mKind.String,
				URL:        mURL.String,
				UploadedBy: mUploadedBy.String,
				CreatedAt:  mCreatedAt.String,
			}
		}
		res = append(res, resp)
	}
	return res, rows.Err()
}

// InspectionFilters carries the visibility predicate and cursor. AuthorID
// and Statuses come from the caller's Visibility and must be applied to
// every read path identically.
type InspectionFilters struct {
	ProjectID       string
	AuthorID        string
	Statuses        []domain.InspectionStatus
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (f InspectionFilters) clauses() ([]string, []any) {
	clauses := []string{"i.project_id=?"}
	args := []any{f.ProjectID}
	if f.AuthorID != "" {
		clauses = append(clauses, "i.engineer_id=?")
		args = append(args, f.AuthorID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "i.status IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(i.created_at < ? OR (i.created_at = ? AND i.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	return clauses, args
}

// ListInspections returns matching inspections newest-first, fully hydrated.
func (r Repo) ListInspections(ctx context.Context, f InspectionFilters) ([]domain.Inspection, error) {
	clauses, args := f.clauses()
	query := `SELECT i.id,i.project_id,i.milestone_id,m.name,i.engineer_id,i.status,i.reviewer_id,i.created_at,i.submitted_at,i.reviewed_at
FROM inspections i JOIN milestones m ON m.id=i.milestone_id
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY i.created_at DESC, i.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		var insp domain.Inspection
		var status string
		var reviewerID, submittedAt, reviewedAt sql.NullString
		if err := rows.Scan(&insp.ID, &insp.ProjectID, &insp.MilestoneID, &insp.MilestoneName, &insp.EngineerID, &status, &reviewerID, &insp.CreatedAt, &submittedAt, &reviewedAt); err != nil {
			return nil, err
		}
		insp.Status = domain.InspectionStatus(status)
		if reviewerID.Valid {
			insp.ReviewerID = &reviewerID.String
		}
		if submittedAt.Valid {
			insp.SubmittedAt = &submittedAt.String
		}
		if reviewedAt.Valid {
			insp.ReviewedAt = &reviewedAt.String
		}
		res = append(res, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		responses, err := r.listResponses(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Responses = responses
	}
	return res, nil
}

// ListInspectionSummaries returns compact rows with pass/fail/na tallies
// folded from each inspection's responses.
func (r Repo) ListInspectionSummaries(ctx context.Context, f InspectionFilters) ([]domain.InspectionSummary, error) {
	clauses, args := f.clauses()
	query := `SELECT i.id,i.milestone_id,m.name,i.engineer_id,i.status,i.created_at,i.submitted_at,
COALESCE(SUM(CASE WHEN r.result='pass' THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN r.result='fail' THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN r.result='na' THEN 1 ELSE 0 END),0)
FROM inspections i
JOIN milestones m ON m.id=i.milestone_id
LEFT JOIN inspection_responses r ON r.inspection_id=i.id
WHERE ` + strings.Join(clauses, " AND ") + `
GROUP BY i.id ORDER BY i.created_at DESC, i.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InspectionSummary
	for rows.Next() {
		var s domain.InspectionSummary
		var status string
		var submittedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.MilestoneID, &s.MilestoneName, &s.EngineerID, &status, &s.CreatedAt, &submittedAt,
			&s.PassCount, &s.FailCount, &s.NACount); err != nil {
			return nil, err
		}
		s.Status = domain.InspectionStatus(status)
		if submittedAt.Valid {
			s.SubmittedAt = &submittedAt.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountInspectionsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM inspections WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
