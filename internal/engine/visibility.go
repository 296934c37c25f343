package engine

import (
	"sitewalk/internal/domain"
	"sitewalk/internal/repo"
)

// Visibility is the role-scoped read predicate. One value drives the SQL
// filters for list and page queries and the in-memory check for single
// reads, so the three paths cannot diverge.
type Visibility struct {
	// AuthorID, when set, restricts reads to inspections authored by it.
	AuthorID string
	// Statuses, when non-empty, restricts reads to those lifecycle states.
	Statuses []domain.InspectionStatus
}

// VisibilityFor computes the predicate for a caller.
func VisibilityFor(actor domain.Actor) Visibility {
	switch {
	case actor.Role.SeesAllInspections():
		return Visibility{}
	case actor.Role == domain.RoleClient:
		return Visibility{Statuses: []domain.InspectionStatus{domain.InspectionSubmitted, domain.InspectionReviewed}}
	default:
		return Visibility{AuthorID: actor.ID}
	}
}

// Allows reports whether the predicate admits the inspection.
func (v Visibility) Allows(insp domain.Inspection) bool {
	if v.AuthorID != "" && insp.EngineerID != v.AuthorID {
		return false
	}
	if len(v.Statuses) > 0 {
		ok := false
		for _, s := range v.Statuses {
			if insp.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Filters applies the predicate to a repo filter set.
func (v Visibility) Filters(projectID string) repo.InspectionFilters {
	return repo.InspectionFilters{
		ProjectID: projectID,
		AuthorID:  v.AuthorID,
		Statuses:  v.Statuses,
	}
}
