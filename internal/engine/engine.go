package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"sitewalk/internal/audit"
	"sitewalk/internal/config"
	"sitewalk/internal/domain"
	"sitewalk/internal/repo"
)

// Engine owns the milestone registry, checklist item store and the
// inspection lifecycle. It holds no locks; concurrency control is left to
// the transactional store.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateProject registers a project. Milestones, inspections and members
// all hang off it.
func (e Engine) CreateProject(ctx context.Context, id, name, description string, actor domain.Actor) (domain.Project, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.Project{}, ForbiddenError{Reason: "administrator role required"}
	}
	if name == "" {
		return domain.Project{}, InvalidInputError{Field: "name", Reason: "is required"}
	}
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:          id,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Audit.Append(ctx, tx, "project.created", p.ID, "project", p.ID, actor.ID, audit.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AddMember registers or updates a project membership.
func (e Engine) AddMember(ctx context.Context, projectID, actorID string, role domain.Role, actor domain.Actor) (domain.ProjectMember, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.ProjectMember{}, ForbiddenError{Reason: "administrator role required"}
	}
	if actorID == "" {
		return domain.ProjectMember{}, InvalidInputError{Field: "actor_id", Reason: "is required"}
	}
	if !role.IsValid() {
		return domain.ProjectMember{}, InvalidInputError{Field: "role", Reason: "unknown role"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.ProjectMember{}, err
	}
	m := domain.ProjectMember{
		ProjectID: projectID,
		ActorID:   actorID,
		Role:      role,
		AddedAt:   e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.Audit.Append(ctx, tx, "member.added", projectID, "member", actorID, actor.ID, audit.Payload{"role": string(role)}); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectMember{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, projectID, actorID string, actor domain.Actor) error {
	if !actor.Role.IsAdminCapable() {
		return ForbiddenError{Reason: "administrator role required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveMember(ctx, tx, projectID, actorID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "member.removed", projectID, "member", actorID, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// MilestoneCreateOptions are parameters for creating a milestone.
type MilestoneCreateOptions struct {
	Name        string
	Description string
	Order       int
}

func (e Engine) CreateMilestone(ctx context.Context, projectID string, opts MilestoneCreateOptions, actor domain.Actor) (domain.Milestone, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.Milestone{}, ForbiddenError{Reason: "administrator role required"}
	}
	if opts.Name == "" {
		return domain.Milestone{}, InvalidInputError{Field: "name", Reason: "is required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Milestone{}, err
	}
	now := e.nowRFC3339()
	m := domain.Milestone{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        opts.Name,
		Description: opts.Description,
		Order:       opts.Order,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       []domain.ChecklistItem{},
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMilestone(ctx, tx, m); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Audit.Append(ctx, tx, "milestone.created", projectID, "milestone", m.ID, actor.ID, audit.Payload{"name": m.Name}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// ListMilestones requires no role narrowing; visibility is the caller's
// project membership concern, not this operation's.
func (e Engine) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListMilestones(ctx, projectID)
}

// ProjectStatus tallies a project's inspections by lifecycle status.
// Draft counts leak authorship activity, so the report is limited to
// roles that see all inspections anyway.
func (e Engine) ProjectStatus(ctx context.Context, projectID string, actor domain.Actor) (map[string]int, error) {
	if !actor.Role.SeesAllInspections() {
		return nil, ForbiddenError{Reason: "reviewer role required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Repo.CountInspectionsByStatus(ctx, projectID)
}

// MilestoneUpdateOptions encapsulates the partial update fields.
type MilestoneUpdateOptions struct {
	Name        *string
	Description *string
	Order       *int
	IsActive    *bool
}

func (e Engine) UpdateMilestone(ctx context.Context, id string, opts MilestoneUpdateOptions, actor domain.Actor) (domain.Milestone, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.Milestone{}, ForbiddenError{Reason: "administrator role required"}
	}
	if opts.Name != nil && *opts.Name == "" {
		return domain.Milestone{}, InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	update := repo.MilestoneUpdate{
		Name:        opts.Name,
		Description: opts.Description,
		Order:       opts.Order,
		IsActive:    opts.IsActive,
	}
	if err := e.Repo.UpdateMilestone(ctx, tx, id, update, e.nowRFC3339()); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Audit.Append(ctx, tx, "milestone.updated", m.ProjectID, "milestone", id, actor.ID, nil); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	updated, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	items, err := e.Repo.ListChecklistItems(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	updated.Items = items
	return updated, nil
}

// DeleteMilestone cascades to checklist items and every inspection (and
// response) targeting the milestone, all inside one transaction so a
// partial cascade is never observable.
func (e Engine) DeleteMilestone(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.Role.IsAdminCapable() {
		return ForbiddenError{Reason: "administrator role required"}
	}
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMilestoneCascade(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "milestone.deleted", m.ProjectID, "milestone", id, actor.ID, audit.Payload{"name": m.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// ItemCreateOptions are parameters for creating a checklist item.
type ItemCreateOptions struct {
	Title           string
	Description     string
	Order           int
	IsRequired      *bool
	IsPhotoRequired *bool
}

func (e Engine) CreateItem(ctx context.Context, milestoneID string, opts ItemCreateOptions, actor domain.Actor) (domain.ChecklistItem, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.ChecklistItem{}, ForbiddenError{Reason: "administrator role required"}
	}
	if opts.Title == "" {
		return domain.ChecklistItem{}, InvalidInputError{Field: "title", Reason: "is required"}
	}
	m, err := e.Repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	it := domain.ChecklistItem{
		ID:              uuid.New().String(),
		MilestoneID:     milestoneID,
		Title:           opts.Title,
		Description:     opts.Description,
		Order:           opts.Order,
		IsRequired:      true,
		IsPhotoRequired: false,
		CreatedAt:       e.nowRFC3339(),
	}
	if opts.IsRequired != nil {
		it.IsRequired = *opts.IsRequired
	}
	if opts.IsPhotoRequired != nil {
		it.IsPhotoRequired = *opts.IsPhotoRequired
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChecklistItem(ctx, tx, it); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Audit.Append(ctx, tx, "checklist_item.created", m.ProjectID, "checklist_item", it.ID, actor.ID, audit.Payload{"title": it.Title}); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	return it, nil
}

// ItemUpdateOptions encapsulates the partial update fields.
type ItemUpdateOptions struct {
	Title           *string
	Description     *string
	Order           *int
	IsRequired      *bool
	IsPhotoRequired *bool
}

func (e Engine) UpdateItem(ctx context.Context, id string, opts ItemUpdateOptions, actor domain.Actor) (domain.ChecklistItem, error) {
	if !actor.Role.IsAdminCapable() {
		return domain.ChecklistItem{}, ForbiddenError{Reason: "administrator role required"}
	}
	if opts.Title != nil && *opts.Title == "" {
		return domain.ChecklistItem{}, InvalidInputError{Field: "title", Reason: "must not be empty"}
	}
	it, err := e.Repo.GetChecklistItem(ctx, id)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	m, err := e.Repo.GetMilestone(ctx, it.MilestoneID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()
	update := repo.ChecklistItemUpdate{
		Title:           opts.Title,
		Description:     opts.Description,
		Order:           opts.Order,
		IsRequired:      opts.IsRequired,
		IsPhotoRequired: opts.IsPhotoRequired,
	}
	if err := e.Repo.UpdateChecklistItem(ctx, tx, id, update); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Audit.Append(ctx, tx, "checklist_item.updated", m.ProjectID, "checklist_item", id, actor.ID, nil); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	return e.Repo.GetChecklistItem(ctx, id)
}

func (e Engine) DeleteItem(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.Role.IsAdminCapable() {
		return ForbiddenError{Reason: "administrator role required"}
	}
	it, err := e.Repo.GetChecklistItem(ctx, id)
	if err != nil {
		return err
	}
	m, err := e.Repo.GetMilestone(ctx, it.MilestoneID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteChecklistItem(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "checklist_item.deleted", m.ProjectID, "checklist_item", id, actor.ID, audit.Payload{"title": it.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// RegisterMedia records a media reference on behalf of the external upload
// subsystem so responses can point at it.
func (e Engine) RegisterMedia(ctx context.Context, id, kind, url string, actor domain.Actor) (domain.Media, error) {
	if kind == "" {
		return domain.Media{}, InvalidInputError{Field: "kind", Reason: "is required"}
	}
	if id == "" {
		id = uuid.New().String()
	}
	m := domain.Media{
		ID:         id,
		Kind:       kind,
		URL:        url,
		UploadedBy: actor.ID,
		CreatedAt:  e.nowRFC3339(),
	}
	if err := e.Repo.InsertMedia(ctx, m); err != nil {
		return domain.Media{}, err
	}
	return m, nil
}
