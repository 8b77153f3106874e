package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	cases := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdmin, PermReadAudit, true},
		{RoleAdmin, PermStreamAudit, true},
		{RoleService, PermWriteAudit, true},
		{RoleService, PermReadAudit, false},
		{"", PermWriteAudit, false},
		{RoleUser, PermReadAudit, false},
		{"", PermStreamAudit, false},
		{"guest", PermWriteAudit, false},
	}
	for _, c := range cases {
		if got := HasPermission(c.role, c.perm); got != c.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", c.role, c.perm, got, c.want)
		}
	}
}
