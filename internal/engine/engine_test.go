package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitewalk/internal/config"
	"sitewalk/internal/db"
	"sitewalk/internal/domain"
	"sitewalk/internal/engine"
	"sitewalk/internal/repo"
)

var (
	adminActor  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	pmActor     = domain.Actor{ID: "pm-1", Role: domain.RoleProjectManager}
	engActor    = domain.Actor{ID: "eng-1", Role: domain.RoleSiteEngineer}
	engActor2   = domain.Actor{ID: "eng-2", Role: domain.RoleSiteEngineer}
	clientActor = domain.Actor{ID: "client-1", Role: domain.RoleClient}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Bootstrap(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("bootstrap db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, "proj-1", "Riverside Tower", "", adminActor); err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, m := range []struct {
		id   string
		role domain.Role
	}{
		{engActor.ID, domain.RoleSiteEngineer},
		{engActor2.ID, domain.RoleSiteEngineer},
		{clientActor.ID, domain.RoleClient},
		{pmActor.ID, domain.RoleProjectManager},
		{adminActor.ID, domain.RoleAdmin},
	} {
		if _, err := eng.AddMember(ctx, "proj-1", m.id, m.role, adminActor); err != nil {
			t.Fatalf("add member %s: %v", m.id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) milestone(t *testing.T, name string) domain.Milestone {
	t.Helper()
	m, err := env.Engine.CreateMilestone(env.Ctx, "proj-1", engine.MilestoneCreateOptions{Name: name}, adminActor)
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	return m
}

func (env testEnv) item(t *testing.T, milestoneID, title string, required, photo bool) domain.ChecklistItem {
	t.Helper()
	it, err := env.Engine.CreateItem(env.Ctx, milestoneID, engine.ItemCreateOptions{
		Title:           title,
		IsRequired:      &required,
		IsPhotoRequired: &photo,
	}, adminActor)
	if err != nil {
		t.Fatalf("create item %s: %v", title, err)
	}
	return it
}

func (env testEnv) media(t *testing.T, kind string) domain.Media {
	t.Helper()
	m, err := env.Engine.RegisterMedia(env.Ctx, "", kind, "https://cdn.example/p.jpg", engActor)
	if err != nil {
		t.Fatalf("register media: %v", err)
	}
	return m
}

func pass(itemID string) engine.ResponseInput {
	return engine.ResponseInput{ChecklistItemID: itemID, Result: domain.ResultPass}
}

func passWithMedia(itemID, mediaID string) engine.ResponseInput {
	return engine.ResponseInput{ChecklistItemID: itemID, Result: domain.ResultPass, MediaID: &mediaID}
}

func TestSubmitRequiresAllRequiredResponses(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Structure")
	required := env.item(t, ms.ID, "Rebar placement", true, false)
	env.item(t, ms.ID, "Site tidy", false, false)

	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted, nil)
	var ie engine.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected invalid input for missing required response, got %v", err)
	}

	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(required.ID)})
	if err != nil {
		t.Fatalf("submit with required response: %v", err)
	}
	if insp.Status != domain.InspectionSubmitted {
		t.Fatalf("status = %s, want submitted", insp.Status)
	}
	if insp.SubmittedAt == nil {
		t.Fatal("submitted_at not set")
	}
}

func TestDraftSkipsSubmissionGates(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Structure")
	env.item(t, ms.ID, "Rebar placement", true, false)

	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft, nil)
	if err != nil {
		t.Fatalf("empty draft should be allowed: %v", err)
	}
	if insp.Status != domain.InspectionDraft {
		t.Fatalf("status = %s, want draft", insp.Status)
	}
}

func TestPhotoGate(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Waterproofing")
	photoItem := env.item(t, ms.ID, "Curing seal", true, true)

	// result set but no media reference
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(photoItem.ID)})
	var ie engine.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected invalid input for missing photo, got %v", err)
	}

	// media of the wrong kind
	wrongKind := env.media(t, "avatar")
	_, err = env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{passWithMedia(photoItem.ID, wrongKind.ID)})
	if !errors.As(err, &ie) {
		t.Fatalf("expected invalid input for wrong media kind, got %v", err)
	}

	// proper evidence
	evidence := env.media(t, domain.MediaKindInspectionEvidence)
	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{passWithMedia(photoItem.ID, evidence.ID)})
	if err != nil {
		t.Fatalf("submit with evidence: %v", err)
	}
	if len(insp.Responses) != 1 || insp.Responses[0].Media == nil {
		t.Fatalf("hydrated response should carry media, got %+v", insp.Responses)
	}
}

func TestMissingMediaIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Electrical")
	it := env.item(t, ms.ID, "Panel wiring", true, false)
	ghost := "no-such-media"
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{passWithMedia(it.ID, ghost)})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for missing media, got %v", err)
	}
}

func TestSubmittedUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Foundation")
	it := env.item(t, ms.ID, "Footing depth", true, false)

	if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict for second submit, got %v", err)
	}

	// drafts are exempt
	draft, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("second draft should be allowed: %v", err)
	}

	// submitting the draft hits the same invariant
	_, err = env.Engine.SubmitInspection(env.Ctx, draft.ID, engActor)
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict submitting draft, got %v", err)
	}

	// a different engineer is a different pair
	if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor2, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)}); err != nil {
		t.Fatalf("other engineer submit: %v", err)
	}
}

func TestConflictReportedBeforePayloadValidation(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Roofing")
	it := env.item(t, ms.ID, "Membrane overlap", true, false)

	if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// the duplicate submit also carries a dangling media reference; the
	// uniqueness violation still wins over the payload error
	missing := "no-such-media"
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{passWithMedia(it.ID, missing)})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGuardedTransitionsRejectStaleStatus(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Drainage")
	it := env.item(t, ms.ID, "Slope check", true, false)

	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, pmActor); err != nil {
		t.Fatalf("review: %v", err)
	}

	// a racing second reviewer whose pre-check read the submitted row
	// loses at the guarded write instead of overwriting the reviewer
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.MarkReviewed(env.Ctx, tx, insp.ID, adminActor.ID, "2024-01-02T00:00:00Z")
	if !errors.Is(err, repo.ErrStaleStatus) {
		t.Fatalf("second review write = %v, want stale status", err)
	}
	err = env.Engine.Repo.MarkSubmitted(env.Ctx, tx, insp.ID, "2024-01-02T00:00:00Z")
	if !errors.Is(err, repo.ErrStaleStatus) {
		t.Fatalf("submit write on reviewed row = %v, want stale status", err)
	}

	got, err := env.Engine.GetInspection(env.Ctx, insp.ID, pmActor)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReviewerID == nil || *got.ReviewerID != pmActor.ID {
		t.Fatalf("reviewer = %v, want %s", got.ReviewerID, pmActor.ID)
	}
}

func TestLifecycleIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Finishes")
	it := env.item(t, ms.ID, "Paintwork", true, false)

	draft, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	var se engine.InvalidStateError
	if _, err := env.Engine.ReviewInspection(env.Ctx, draft.ID, pmActor); !errors.As(err, &se) {
		t.Fatalf("reviewing a draft should be invalid state, got %v", err)
	}

	submitted, err := env.Engine.SubmitInspection(env.Ctx, draft.ID, engActor)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.SubmitInspection(env.Ctx, submitted.ID, engActor); !errors.As(err, &se) {
		t.Fatalf("double submit should be invalid state, got %v", err)
	}

	reviewed, err := env.Engine.ReviewInspection(env.Ctx, submitted.ID, pmActor)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != domain.InspectionReviewed {
		t.Fatalf("status = %s, want reviewed", reviewed.Status)
	}
	if reviewed.ReviewerID == nil || *reviewed.ReviewerID != pmActor.ID {
		t.Fatalf("reviewer = %v, want %s", reviewed.ReviewerID, pmActor.ID)
	}
	if reviewed.ReviewedAt == nil {
		t.Fatal("reviewed_at not set")
	}
	if _, err := env.Engine.ReviewInspection(env.Ctx, reviewed.ID, pmActor); !errors.As(err, &se) {
		t.Fatalf("re-review should be invalid state, got %v", err)
	}
}

func TestReviewRequiresReviewerRole(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Roofing")
	it := env.item(t, ms.ID, "Membrane overlap", true, false)
	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var fe engine.ForbiddenError
	if _, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, engActor); !errors.As(err, &fe) {
		t.Fatalf("engineer review should be forbidden, got %v", err)
	}
	if _, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, clientActor); !errors.As(err, &fe) {
		t.Fatalf("client review should be forbidden, got %v", err)
	}
}

func TestOnlyAuthorMaySubmit(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Plumbing")
	it := env.item(t, ms.ID, "Pressure test", true, false)
	draft, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	var fe engine.ForbiddenError
	if _, err := env.Engine.SubmitInspection(env.Ctx, draft.ID, engActor2); !errors.As(err, &fe) {
		t.Fatalf("submit by non-author should be forbidden, got %v", err)
	}
}

func TestNonMemberCannotCreate(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Earthworks")
	outsider := domain.Actor{ID: "drifter", Role: domain.RoleSiteEngineer}
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, outsider, domain.InspectionDraft, nil)
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}
}

func TestInactiveMilestoneRejectsInspections(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Facade")
	inactive := false
	if _, err := env.Engine.UpdateMilestone(env.Ctx, ms.ID, engine.MilestoneUpdateOptions{IsActive: &inactive}, adminActor); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft, nil)
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("expected invalid state for inactive milestone, got %v", err)
	}
}

func TestMilestoneAdminGate(t *testing.T) {
	env := newTestEnv(t)
	var fe engine.ForbiddenError
	if _, err := env.Engine.CreateMilestone(env.Ctx, "proj-1", engine.MilestoneCreateOptions{Name: "x"}, engActor); !errors.As(err, &fe) {
		t.Fatalf("engineer should not create milestones, got %v", err)
	}
	ms := env.milestone(t, "Glazing")
	if _, err := env.Engine.CreateItem(env.Ctx, ms.ID, engine.ItemCreateOptions{Title: "x"}, pmActor); !errors.As(err, &fe) {
		t.Fatalf("project manager should not create items, got %v", err)
	}
	if err := env.Engine.DeleteMilestone(env.Ctx, ms.ID, clientActor); !errors.As(err, &fe) {
		t.Fatalf("client should not delete milestones, got %v", err)
	}
}

func TestVisibility(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Drainage")
	it := env.item(t, ms.ID, "Slope check", true, false)

	if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft, nil); err != nil {
		t.Fatalf("draft: %v", err)
	}
	submitted, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	clientList, err := env.Engine.ListProjectInspections(env.Ctx, "proj-1", clientActor)
	if err != nil {
		t.Fatalf("client list: %v", err)
	}
	if len(clientList) != 1 || clientList[0].ID != submitted.ID {
		t.Fatalf("client should see only the submitted inspection, got %d", len(clientList))
	}

	otherEngList, err := env.Engine.ListProjectInspections(env.Ctx, "proj-1", engActor2)
	if err != nil {
		t.Fatalf("eng2 list: %v", err)
	}
	if len(otherEngList) != 0 {
		t.Fatalf("other engineer should see nothing, got %d", len(otherEngList))
	}

	authorList, err := env.Engine.ListProjectInspections(env.Ctx, "proj-1", engActor)
	if err != nil {
		t.Fatalf("author list: %v", err)
	}
	if len(authorList) != 2 {
		t.Fatalf("author should see both, got %d", len(authorList))
	}

	pmList, err := env.Engine.ListProjectInspections(env.Ctx, "proj-1", pmActor)
	if err != nil {
		t.Fatalf("pm list: %v", err)
	}
	if len(pmList) != 2 {
		t.Fatalf("project manager should see both, got %d", len(pmList))
	}
}

func TestSingleReadAppliesSamePredicate(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Insulation")
	draft, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft, nil)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	var fe engine.ForbiddenError
	if _, err := env.Engine.GetInspection(env.Ctx, draft.ID, clientActor); !errors.As(err, &fe) {
		t.Fatalf("client reading a draft should be forbidden, got %v", err)
	}
	if _, err := env.Engine.GetInspection(env.Ctx, draft.ID, engActor2); !errors.As(err, &fe) {
		t.Fatalf("other engineer reading should be forbidden, got %v", err)
	}
	if _, err := env.Engine.GetInspection(env.Ctx, draft.ID, engActor); err != nil {
		t.Fatalf("author read: %v", err)
	}
	if _, err := env.Engine.GetInspection(env.Ctx, draft.ID, pmActor); err != nil {
		t.Fatalf("pm read: %v", err)
	}
}

func TestMilestoneCascadeDelete(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Demolition")
	it1 := env.item(t, ms.ID, "Debris cleared", true, false)
	it2 := env.item(t, ms.ID, "Utilities capped", false, false)
	for _, actor := range []domain.Actor{engActor, engActor2} {
		if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, actor, domain.InspectionSubmitted,
			[]engine.ResponseInput{pass(it1.ID), pass(it2.ID)}); err != nil {
			t.Fatalf("seed inspection: %v", err)
		}
	}

	if err := env.Engine.DeleteMilestone(env.Ctx, ms.ID, adminActor); err != nil {
		t.Fatalf("delete milestone: %v", err)
	}

	for _, q := range []struct {
		name, query string
	}{
		{"milestones", `SELECT COUNT(*) FROM milestones WHERE id=?`},
		{"items", `SELECT COUNT(*) FROM checklist_items WHERE milestone_id=?`},
		{"inspections", `SELECT COUNT(*) FROM inspections WHERE milestone_id=?`},
		{"responses", `SELECT COUNT(*) FROM inspection_responses WHERE inspection_id IN (SELECT id FROM inspections WHERE milestone_id=?)`},
	} {
		var n int
		if err := env.Engine.DB.QueryRowContext(env.Ctx, q.query, ms.ID).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", q.name, err)
		}
		if n != 0 {
			t.Fatalf("%d %s remain after cascade", n, q.name)
		}
	}
}

func TestChecklistEditsApplyToLaterSubmits(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "HVAC")
	it := env.item(t, ms.ID, "Duct pressure", true, false)
	draft, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}

	// admin tightens requirements after the draft exists
	env.item(t, ms.ID, "Filter fitted", true, false)

	_, err = env.Engine.SubmitInspection(env.Ctx, draft.ID, engActor)
	var ie engine.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("submit should fail against the current checklist, got %v", err)
	}
}

func TestInspectionPagination(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Surveys")
	it := env.item(t, ms.ID, "Benchmark set", true, false)
	for i := 0; i < 5; i++ {
		if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
			[]engine.ResponseInput{pass(it.ID)}); err != nil {
			t.Fatalf("seed draft %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := env.Engine.ListInspectionPage(env.Ctx, "proj-1", pmActor, cursor, 2)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		for _, s := range page.Items {
			if seen[s.ID] {
				t.Fatalf("inspection %s appeared on two pages", s.ID)
			}
			seen[s.ID] = true
			if s.MilestoneName != "Surveys" {
				t.Fatalf("milestone name = %q", s.MilestoneName)
			}
		}
		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			t.Fatal("has_more without next_cursor")
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 || pages != 3 {
		t.Fatalf("walked %d inspections over %d pages, want 5 over 3", len(seen), pages)
	}

	// visibility applies to pages too
	page, err := env.Engine.ListInspectionPage(env.Ctx, "proj-1", clientActor, "", 10)
	if err != nil {
		t.Fatalf("client page: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("client should see no drafts, got %d", len(page.Items))
	}

	_, err = env.Engine.ListInspectionPage(env.Ctx, "proj-1", pmActor, "not-base64!", 10)
	var ie engine.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("malformed cursor should be invalid input, got %v", err)
	}
}

func TestSummaryTallies(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Concrete")
	it1 := env.item(t, ms.ID, "Slump test", true, false)
	it2 := env.item(t, ms.ID, "Cube samples", true, false)
	it3 := env.item(t, ms.ID, "Weather log", false, false)
	if _, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{
			pass(it1.ID),
			{ChecklistItemID: it2.ID, Result: domain.ResultFail, Remark: "honeycombing"},
			{ChecklistItemID: it3.ID, Result: domain.ResultNA},
		}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	page, err := env.Engine.ListInspectionPage(env.Ctx, "proj-1", pmActor, "", 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("want one summary, got %d", len(page.Items))
	}
	s := page.Items[0]
	if s.PassCount != 1 || s.FailCount != 1 || s.NACount != 1 {
		t.Fatalf("tallies = %d/%d/%d, want 1/1/1", s.PassCount, s.FailCount, s.NACount)
	}
	if s.SubmittedAt == nil {
		t.Fatal("summary should carry submitted_at")
	}
}

func TestFoundationCheckScenario(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Foundation Check")
	rebar := env.item(t, ms.ID, "Rebar placement", true, false)
	curing := env.item(t, ms.ID, "Curing seal", true, true)
	photo := env.media(t, domain.MediaKindInspectionEvidence)

	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(rebar.ID), passWithMedia(curing.ID, photo.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if insp.Status != domain.InspectionSubmitted {
		t.Fatalf("status = %s, want submitted", insp.Status)
	}

	_, err = env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(rebar.ID), passWithMedia(curing.ID, photo.ID)})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second submit should conflict, got %v", err)
	}

	reviewed, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, pmActor)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != domain.InspectionReviewed || reviewed.ReviewerID == nil {
		t.Fatalf("review did not record state, got %+v", reviewed)
	}

	var se engine.InvalidStateError
	if _, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, pmActor); !errors.As(err, &se) {
		t.Fatalf("re-review should be invalid state, got %v", err)
	}
}

func TestResponsesOrderedByItemOrder(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMilestone(env.Ctx, "proj-1", engine.MilestoneCreateOptions{Name: "Steelwork"}, adminActor)
	if err != nil {
		t.Fatalf("milestone: %v", err)
	}
	second, err := env.Engine.CreateItem(env.Ctx, m.ID, engine.ItemCreateOptions{Title: "Bolt torque", Order: 2}, adminActor)
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	first, err := env.Engine.CreateItem(env.Ctx, m.ID, engine.ItemCreateOptions{Title: "Alignment", Order: 1}, adminActor)
	if err != nil {
		t.Fatalf("item: %v", err)
	}

	// supply responses in reverse order
	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", m.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(second.ID), pass(first.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(insp.Responses) != 2 {
		t.Fatalf("want 2 responses, got %d", len(insp.Responses))
	}
	if insp.Responses[0].ChecklistItemID != first.ID || insp.Responses[1].ChecklistItemID != second.ID {
		t.Fatal("responses not ordered by checklist item order")
	}
}

func TestDuplicateAndForeignResponsesRejected(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Paving")
	it := env.item(t, ms.ID, "Joint spacing", true, false)
	other := env.milestone(t, "Landscaping")
	foreign := env.item(t, other.ID, "Topsoil depth", true, false)

	var ie engine.InvalidInputError
	_, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(it.ID), pass(it.ID)})
	if !errors.As(err, &ie) {
		t.Fatalf("duplicate responses should be invalid input, got %v", err)
	}
	_, err = env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionDraft,
		[]engine.ResponseInput{pass(foreign.ID)})
	if !errors.As(err, &ie) {
		t.Fatalf("foreign item response should be invalid input, got %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ms := env.milestone(t, "Scaffolding")
	it := env.item(t, ms.ID, "Tag current", true, false)
	insp, err := env.Engine.CreateInspection(env.Ctx, "proj-1", ms.ID, engActor, domain.InspectionSubmitted,
		[]engine.ResponseInput{pass(it.ID)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ReviewInspection(env.Ctx, insp.ID, pmActor); err != nil {
		t.Fatalf("review: %v", err)
	}

	entries, err := env.Engine.Repo.LatestAudit(env.Ctx, 50, "proj-1", "", "", "")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	want := map[string]bool{
		"milestone.created":      false,
		"checklist_item.created": false,
		"inspection.created":     false,
		"inspection.reviewed":    false,
	}
	for _, e := range entries {
		if _, ok := want[e.Action]; ok {
			want[e.Action] = true
		}
	}
	for action, seen := range want {
		if !seen {
			t.Fatalf("audit log missing %s", action)
		}
	}
}

func TestMilestoneNotInProjectIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, "proj-2", "Harbor Works", "", adminActor); err != nil {
		t.Fatalf("second project: %v", err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, "proj-2", engActor.ID, domain.RoleSiteEngineer, adminActor); err != nil {
		t.Fatalf("member: %v", err)
	}
	foreign, err := env.Engine.CreateMilestone(env.Ctx, "proj-2", engine.MilestoneCreateOptions{Name: "Quay wall"}, adminActor)
	if err != nil {
		t.Fatalf("milestone: %v", err)
	}
	_, err = env.Engine.CreateInspection(env.Ctx, "proj-1", foreign.ID, engActor, domain.InspectionDraft, nil)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("milestone from another project should be not found, got %v", err)
	}
}
