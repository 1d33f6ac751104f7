package vectorsource

import "testing"

func TestQualify(t *testing.T) {
	cases := []struct {
		schema, table, want string
	}{
		{"", "items", `"items"`},
		{"public", "items", `"public"."items"`},
		{"my schema", "items", `"my schema"."items"`},
	}
	for _, c := range cases {
		if got := qualify(c.schema, c.table); got != c.want {
			t.Errorf("qualify(%q, %q) = %q, want %q", c.schema, c.table, got, c.want)
		}
	}
}
