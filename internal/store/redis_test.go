package store

import "testing"

func TestGlobPatternEscapesMetacharacters(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
	}{
		{"task:user-1:", "task:user-1:*"},
		{"task:a*b:", `task:a\*b:*`},
		{"task:a?b:", `task:a\?b:*`},
		{"task:[admin]:", `task:\[admin\]:*`},
		{`task:a\b:`, `task:a\\b:*`},
	}
	for _, tc := range cases {
		if got := globPattern(tc.prefix); got != tc.want {
			t.Errorf("globPattern(%q) = %q, want %q", tc.prefix, got, tc.want)
		}
	}
}
