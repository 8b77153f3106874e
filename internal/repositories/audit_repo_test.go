package repositories

import "testing"

func TestAuditFilterNormalized(t *testing.T) {
	cases := []struct {
		in         AuditFilter
		wantLimit  int
		wantOffset int
	}{
		{AuditFilter{}, DefaultListLimit, 0},
		{AuditFilter{Limit: 10, Offset: 20}, 10, 20},
		{AuditFilter{Limit: 10000, Offset: -5}, MaxListLimit, 0},
	}
	for _, c := range cases {
		got := c.in.normalized()
		if got.Limit != c.wantLimit || got.Offset != c.wantOffset {
			t.Errorf("normalized(%+v) = %+v", c.in, got)
		}
	}
}
