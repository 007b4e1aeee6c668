package bgeigie

import (
	"math"
	"testing"
)

func TestToDecimalDegrees(t *testing.T) {
	cases := []struct {
		raw  string
		hemi string
		want float64
	}{
		{"3548.6375", "N", 35.81062},
		{"3548.6375", "S", -35.81062},
		{"13921.1234", "E", 139.35206},
		{"13921.1234", "W", -139.35206},
		{"0007.0000", "N", 0.11667},
		{"4618.9996", "n", 46.31666}, // hemisphere letter is case-insensitive
	}
	for _, c := range cases {
		got := ToDecimalDegrees(c.raw, c.hemi)
		if math.Abs(got-c.want) > 1e-4 {
			t.Fatalf("ToDecimalDegrees(%q, %q) = %v, want ~%v", c.raw, c.hemi, got, c.want)
		}
	}
}

func TestToDecimalDegrees_Sentinel(t *testing.T) {
	cases := []struct {
		raw  string
		hemi string
	}{
		{"", "N"},
		{"  ", "N"},
		{"4.2", "N"},       // too short to split degrees/minutes
		{"ab12.34", "N"},   // non-numeric degrees
		{"12xy.34", "N"},   // non-numeric minutes
		{"4618.99.96", "E"}, // double dot
	}
	for _, c := range cases {
		if got := ToDecimalDegrees(c.raw, c.hemi); got != 0 {
			t.Fatalf("ToDecimalDegrees(%q, %q) = %v, want 0 sentinel", c.raw, c.hemi, got)
		}
	}
}
