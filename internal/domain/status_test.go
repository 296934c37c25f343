package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	legal := map[InspectionStatus]InspectionStatus{
		InspectionDraft:     InspectionSubmitted,
		InspectionSubmitted: InspectionReviewed,
	}
	all := []InspectionStatus{InspectionDraft, InspectionSubmitted, InspectionReviewed}
	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := legal[from] == to
			if got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role    Role
		admin   bool
		review  bool
		seesAll bool
	}{
		{RoleSiteEngineer, false, false, false},
		{RoleClient, false, false, false},
		{RoleProjectManager, false, true, true},
		{RoleAdmin, true, true, true},
		{RoleSuperAdmin, true, true, true},
	}
	for _, tc := range cases {
		if got := tc.role.IsAdminCapable(); got != tc.admin {
			t.Errorf("%s.IsAdminCapable() = %v, want %v", tc.role, got, tc.admin)
		}
		if got := tc.role.CanReview(); got != tc.review {
			t.Errorf("%s.CanReview() = %v, want %v", tc.role, got, tc.review)
		}
		if got := tc.role.SeesAllInspections(); got != tc.seesAll {
			t.Errorf("%s.SeesAllInspections() = %v, want %v", tc.role, got, tc.seesAll)
		}
	}
	if Role("foreman").IsValid() {
		t.Error("unknown role must not validate")
	}
	if !ResultNA.IsValid() || ResponseResult("maybe").IsValid() {
		t.Error("result validity broken")
	}
}
