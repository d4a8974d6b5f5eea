package permission

import "testing"

func TestDefaultPolicyRoleGating(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		path string
		role Role
		want Decision
	}{
		{"/v1/messages/moderator/list", RoleUser, Forbidden},
		{"/v1/messages/moderator/list", RoleModerator, Allow},
		{"/v1/messages/moderator/list", RoleAdmin, Allow},
		{"/v1/users/admin/ban", RoleUser, Forbidden},
		{"/v1/users/admin/ban", RoleModerator, Forbidden},
		{"/v1/users/admin/ban", RoleAdmin, Allow},
		{"/admin", RoleModerator, Forbidden},
		{"/v1/messages", RoleUser, Allow},
		{"/session/me", RoleUser, Allow},
	}
	for _, tc := range cases {
		if got := p.Decide(tc.path, tc.role, true); got != tc.want {
			t.Fatalf("Decide(%q, %s) = %s, want %s", tc.path, tc.role, got, tc.want)
		}
	}
}

func TestDefaultPolicyAnonymous(t *testing.T) {
	p := DefaultPolicy()

	public := []string{
		"/session/login",
		"/session/register",
		"/session/refresh-token",
		"/session/logout",
		"/api-docs",
		"/api-docs/swagger-config",
		"/api-docs-op/index",
		"/swagger-ui/index.html",
		"/healthz",
	}
	for _, path := range public {
		if got := p.Decide(path, "", false); got != Allow {
			t.Fatalf("expected %q to be public, got %s", path, got)
		}
	}

	protected := []string{"/session/me", "/v1/messages", "/v1/moderator/x", "/v1/admin/x", "/session/login/extra"}
	for _, path := range protected {
		if got := p.Decide(path, "", false); got != Unauthenticated {
			t.Fatalf("expected %q to need identity, got %s", path, got)
		}
	}
}

func TestSegmentMatchesWholeSegments(t *testing.T) {
	m := Segment("admin")
	if m("/v1/administrator/x") {
		t.Fatal("partial segment must not match")
	}
	if !m("/v1/admin") || !m("/admin/x") {
		t.Fatal("whole segment must match")
	}
}

func TestFirstMatchWins(t *testing.T) {
	p, err := NewPolicy(
		Rule{Name: "open", Match: Prefix("/v1/admin/open"), Public: true},
		Rule{Name: "admin", Match: Segment("admin"), Roles: Roles(RoleAdmin)},
	)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if got := p.Decide("/v1/admin/open/status", "", false); got != Allow {
		t.Fatalf("earlier public rule must win, got %s", got)
	}
	if got := p.Decide("/v1/admin/closed", RoleUser, true); got != Forbidden {
		t.Fatalf("expected forbidden, got %s", got)
	}
}

func TestNewPolicyRejectsBadRules(t *testing.T) {
	if _, err := NewPolicy(Rule{Name: "nil"}); err == nil {
		t.Fatal("expected error for rule without matcher")
	}
	if _, err := NewPolicy(Rule{Name: "mixed", Match: Exact("/x"), Public: true, Roles: Roles(RoleAdmin)}); err == nil {
		t.Fatal("expected error for public rule with roles")
	}
}
