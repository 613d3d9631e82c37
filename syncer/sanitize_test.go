package syncer

import "testing"

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name passes through", "Wafer-A", "Wafer-A"},
		{"underscore allowed", "lot_42", "lot_42"},
		{"spaces replaced", "lot 7 wafer 3", "lot_7_wafer_3"},
		{"document store specials replaced", "a.b#c$d[e]f", "a_b_c_d_e_f"},
		{"slash replaced", "fab/line-2", "fab_line-2"},
		{"unicode replaced", "ウェハ-1", "___-1"},
		{"empty stays empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeKey(tc.in); got != tc.want {
				t.Errorf("SanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		for _, in := range []string{"Wafer-A", "lot 7/wafer#3", "a.b[c]"} {
			once := SanitizeKey(in)
			if twice := SanitizeKey(once); twice != once {
				t.Errorf("SanitizeKey not idempotent for %q: %q -> %q", in, once, twice)
			}
		}
	})
}
