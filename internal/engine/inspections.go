package engine

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sitewalk/internal/audit"
	"sitewalk/internal/domain"
	"sitewalk/internal/repo"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// ResponseInput is one recorded outcome supplied at creation time.
type ResponseInput struct {
	ChecklistItemID string
	Result          domain.ResponseResult
	Remark          string
	MediaID         *string
}

// CreateInspection records an engineer's checklist results against a
// milestone. requestedStatus is draft or submitted; submitted runs the
// completeness and photo gates and the uniqueness check. The inspection
// row and all response rows land in one transaction.
func (e Engine) CreateInspection(ctx context.Context, projectID, milestoneID string, actor domain.Actor, requestedStatus domain.InspectionStatus, responses []ResponseInput) (domain.Inspection, error) {
	if requestedStatus != domain.InspectionDraft && requestedStatus != domain.InspectionSubmitted {
		return domain.Inspection{}, InvalidInputError{Field: "status", Reason: "must be draft or submitted"}
	}
	member, err := e.Repo.IsProjectMember(ctx, projectID, actor.ID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if !member {
		return domain.Inspection{}, ForbiddenError{Reason: "not a member of this project"}
	}
	m, err := e.Repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if m.ProjectID != projectID {
		return domain.Inspection{}, repo.ErrNotFound
	}
	if !m.IsActive {
		return domain.Inspection{}, InvalidStateError{Reason: "milestone is not active"}
	}

	now := e.nowRFC3339()
	insp := domain.Inspection{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		MilestoneID: milestoneID,
		EngineerID:  actor.ID,
		Status:      requestedStatus,
		CreatedAt:   now,
	}
	if requestedStatus == domain.InspectionSubmitted {
		insp.SubmittedAt = &now
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()

	// Validation reads the checklist inside the same transaction as the
	// inserts so a concurrent admin edit cannot invalidate what was
	// checked.
	items, err := e.Repo.ListChecklistItemsTx(ctx, tx, milestoneID)
	if err != nil {
		return domain.Inspection{}, err
	}
	// The uniqueness check comes first so a duplicate submit reports the
	// conflict even when its payload is also invalid.
	if requestedStatus == domain.InspectionSubmitted {
		taken, err := e.Repo.HasSubmittedInspectionTx(ctx, tx, milestoneID, actor.ID)
		if err != nil {
			return domain.Inspection{}, err
		}
		if taken {
			return domain.Inspection{}, ConflictError{MilestoneID: milestoneID, EngineerID: actor.ID}
		}
	}
	if err := e.validateResponses(ctx, tx, items, responses); err != nil {
		return domain.Inspection{}, err
	}
	if requestedStatus == domain.InspectionSubmitted {
		if err := checkSubmissionGates(items, responses); err != nil {
			return domain.Inspection{}, err
		}
	}

	if err := e.Repo.InsertInspection(ctx, tx, insp); err != nil {
		return domain.Inspection{}, translateUnique(err, milestoneID, actor.ID)
	}
	for _, in := range responses {
		resp := domain.InspectionResponse{
			ID:              uuid.New().String(),
			InspectionID:    insp.ID,
			ChecklistItemID: in.ChecklistItemID,
			Result:          in.Result,
			Remark:          in.Remark,
			MediaID:         in.MediaID,
		}
		if err := e.Repo.InsertResponse(ctx, tx, resp); err != nil {
			return domain.Inspection{}, err
		}
	}
	if err := e.Audit.Append(ctx, tx, "inspection.created", projectID, "inspection", insp.ID, actor.ID,
		audit.Payload{"milestone_id": milestoneID, "status": string(requestedStatus)}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, translateUnique(err, milestoneID, actor.ID)
	}
	return e.Repo.GetInspection(ctx, insp.ID)
}

// SubmitInspection advances a draft to submitted. Only the author may
// submit, and the gates run against the checklist as configured now, not
// as it was when the draft was created.
func (e Engine) SubmitInspection(ctx context.Context, id string, actor domain.Actor) (domain.Inspection, error) {
	insp, err := e.Repo.GetInspection(ctx, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	if insp.EngineerID != actor.ID {
		return domain.Inspection{}, ForbiddenError{Reason: "only the author may submit"}
	}
	if !insp.Status.CanTransitionTo(domain.InspectionSubmitted) {
		return domain.Inspection{}, InvalidStateError{Reason: "only draft inspections can be submitted"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()

	items, err := e.Repo.ListChecklistItemsTx(ctx, tx, insp.MilestoneID)
	if err != nil {
		return domain.Inspection{}, err
	}
	inputs := make([]ResponseInput, 0, len(insp.Responses))
	for _, r := range insp.Responses {
		inputs = append(inputs, ResponseInput{
			ChecklistItemID: r.ChecklistItemID,
			Result:          r.Result,
			Remark:          r.Remark,
			MediaID:         r.MediaID,
		})
	}
	taken, err := e.Repo.HasSubmittedInspectionTx(ctx, tx, insp.MilestoneID, insp.EngineerID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if taken {
		return domain.Inspection{}, ConflictError{MilestoneID: insp.MilestoneID, EngineerID: insp.EngineerID}
	}
	if err := checkSubmissionGates(items, inputs); err != nil {
		return domain.Inspection{}, err
	}

	submittedAt := e.nowRFC3339()
	if err := e.Repo.MarkSubmitted(ctx, tx, id, submittedAt); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return domain.Inspection{}, InvalidStateError{Reason: "only draft inspections can be submitted"}
		}
		return domain.Inspection{}, translateUnique(err, insp.MilestoneID, insp.EngineerID)
	}
	if err := e.Audit.Append(ctx, tx, "inspection.submitted", insp.ProjectID, "inspection", id, actor.ID, nil); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, translateUnique(err, insp.MilestoneID, insp.EngineerID)
	}
	return e.Repo.GetInspection(ctx, id)
}

// ReviewInspection advances a submitted inspection to reviewed and records
// the reviewer. Review is terminal.
func (e Engine) ReviewInspection(ctx context.Context, id string, actor domain.Actor) (domain.Inspection, error) {
	if !actor.Role.CanReview() {
		return domain.Inspection{}, ForbiddenError{Reason: "administrator or project manager role required"}
	}
	insp, err := e.Repo.GetInspection(ctx, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	if insp.Status != domain.InspectionSubmitted {
		return domain.Inspection{}, InvalidStateError{Reason: "only submitted inspections can be reviewed"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkReviewed(ctx, tx, id, actor.ID, e.nowRFC3339()); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return domain.Inspection{}, InvalidStateError{Reason: "only submitted inspections can be reviewed"}
		}
		return domain.Inspection{}, err
	}
	if err := e.Audit.Append(ctx, tx, "inspection.reviewed", insp.ProjectID, "inspection", id, actor.ID, nil); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	return e.Repo.GetInspection(ctx, id)
}

// GetInspection returns one hydrated inspection, subject to the caller's
// visibility predicate.
func (e Engine) GetInspection(ctx context.Context, id string, actor domain.Actor) (domain.Inspection, error) {
	insp, err := e.Repo.GetInspection(ctx, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	if !VisibilityFor(actor).Allows(insp) {
		return domain.Inspection{}, ForbiddenError{Reason: "inspection is not visible to this role"}
	}
	return insp, nil
}

// ListProjectInspections returns every inspection the caller may see,
// newest first, fully hydrated.
func (e Engine) ListProjectInspections(ctx context.Context, projectID string, actor domain.Actor) ([]domain.Inspection, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListInspections(ctx, VisibilityFor(actor).Filters(projectID))
}

// InspectionPage is one cursor page of compact summaries.
type InspectionPage struct {
	Items      []domain.InspectionSummary `json:"items"`
	HasMore    bool                       `json:"has_more"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

// ListInspectionPage returns a page of summaries under the caller's
// visibility predicate. The cursor is opaque; limit is clamped.
func (e Engine) ListInspectionPage(ctx context.Context, projectID string, actor domain.Actor, cursor string, limit int) (InspectionPage, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return InspectionPage{}, err
	}
	def, max := defaultPageLimit, maxPageLimit
	if e.Config != nil {
		if e.Config.Pagination.DefaultLimit > 0 {
			def = e.Config.Pagination.DefaultLimit
		}
		if e.Config.Pagination.MaxLimit > 0 {
			max = e.Config.Pagination.MaxLimit
		}
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}

	f := VisibilityFor(actor).Filters(projectID)
	f.Limit = limit + 1
	if cursor != "" {
		createdAt, id, err := decodeCursor(cursor)
		if err != nil {
			return InspectionPage{}, InvalidInputError{Field: "cursor", Reason: "malformed cursor"}
		}
		f.CursorCreatedAt = createdAt
		f.CursorID = id
	}

	rows, err := e.Repo.ListInspectionSummaries(ctx, f)
	if err != nil {
		return InspectionPage{}, err
	}
	page := InspectionPage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	if page.Items == nil {
		page.Items = []domain.InspectionSummary{}
	}
	return page, nil
}

// validateResponses checks structural validity of the supplied responses
// against the milestone's checklist and registered media. Runs for drafts
// and submissions alike.
func (e Engine) validateResponses(ctx context.Context, tx *sql.Tx, items []domain.ChecklistItem, responses []ResponseInput) error {
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}
	seen := make(map[string]bool, len(responses))
	var mediaIDs []string
	for _, r := range responses {
		if !known[r.ChecklistItemID] {
			return InvalidInputError{Field: "checklist_item_id", Reason: fmt.Sprintf("item %s does not belong to this milestone", r.ChecklistItemID)}
		}
		if seen[r.ChecklistItemID] {
			return InvalidInputError{Field: "checklist_item_id", Reason: fmt.Sprintf("duplicate response for item %s", r.ChecklistItemID)}
		}
		seen[r.ChecklistItemID] = true
		if !r.Result.IsValid() {
			return InvalidInputError{Field: "result", Reason: "must be pass, fail or na"}
		}
		if r.MediaID != nil && *r.MediaID != "" {
			mediaIDs = append(mediaIDs, *r.MediaID)
		}
	}
	if len(mediaIDs) == 0 {
		return nil
	}
	media, err := e.Repo.GetMediaByIDsTx(ctx, tx, mediaIDs)
	if err != nil {
		return err
	}
	for _, id := range mediaIDs {
		m, ok := media[id]
		if !ok {
			return repo.ErrNotFound
		}
		if m.Kind != domain.MediaKindInspectionEvidence {
			return InvalidInputError{Field: "media_id", Reason: fmt.Sprintf("media %s is not inspection evidence", id)}
		}
	}
	return nil
}

// checkSubmissionGates enforces completeness and the photo gate. The first
// offending item is named in the error.
func checkSubmissionGates(items []domain.ChecklistItem, responses []ResponseInput) error {
	byItem := make(map[string]ResponseInput, len(responses))
	for _, r := range responses {
		byItem[r.ChecklistItemID] = r
	}
	for _, it := range items {
		r, answered := byItem[it.ID]
		if it.IsRequired && !answered {
			return InvalidInputError{Field: "responses", Reason: fmt.Sprintf("required item %q has no response", it.Title)}
		}
		if it.IsPhotoRequired {
			if !answered || r.MediaID == nil || *r.MediaID == "" {
				return InvalidInputError{Field: "responses", Reason: fmt.Sprintf("item %q requires photo evidence", it.Title)}
			}
		}
	}
	return nil
}

// translateUnique maps the partial unique index violation on submitted
// inspections to the conflict error.
func translateUnique(err error, milestoneID, engineerID string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed: inspections") {
		return ConflictError{MilestoneID: milestoneID, EngineerID: engineerID}
	}
	return err
}

func encodeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func decodeCursor(cursor string) (createdAt, id string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", err
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok || createdAt == "" || id == "" {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return createdAt, id, nil
}
