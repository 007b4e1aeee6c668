package quality

import (
	"testing"

	"bgeigie-hub/internal/bgeigie"
)

func batch(n, cpm int) []bgeigie.Measurement {
	ms := make([]bgeigie.Measurement, n)
	for i := range ms {
		ms[i] = bgeigie.Measurement{CPM: cpm, Latitude: 35.81, Longitude: 139.35}
	}
	return ms
}

func TestIsPlausible(t *testing.T) {
	cases := []struct {
		name string
		m    bgeigie.Measurement
		want bool
	}{
		{"ok", bgeigie.Measurement{CPM: 31, Latitude: 35.8, Longitude: 139.3}, true},
		{"negative cpm", bgeigie.Measurement{CPM: -1, Latitude: 35.8, Longitude: 139.3}, false},
		{"cpm above bound", bgeigie.Measurement{CPM: 50001, Latitude: 35.8, Longitude: 139.3}, false},
		{"cpm at bound", bgeigie.Measurement{CPM: 50000, Latitude: 35.8, Longitude: 139.3}, true},
		{"lat out of range", bgeigie.Measurement{CPM: 31, Latitude: 91, Longitude: 139.3}, false},
		{"lon out of range", bgeigie.Measurement{CPM: 31, Latitude: 35.8, Longitude: -181}, false},
		{"origin sentinel", bgeigie.Measurement{CPM: 31, Latitude: 0, Longitude: 0}, false},
		{"near-origin sentinel", bgeigie.Measurement{CPM: 31, Latitude: 0.0005, Longitude: -0.0005}, false},
		{"equator crossing", bgeigie.Measurement{CPM: 31, Latitude: 0.0002, Longitude: 6.97}, true},
	}
	for _, c := range cases {
		if got := IsPlausible(c.m); got != c.want {
			t.Fatalf("%s: IsPlausible = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestFilter_DropsSilently(t *testing.T) {
	ms := append(batch(3, 40), bgeigie.Measurement{CPM: 99999, Latitude: 35.8, Longitude: 139.3})
	got := Filter(ms)
	if len(got) != 3 {
		t.Fatalf("expected 3 plausible records, got %d", len(got))
	}
}

func TestEvaluate_AutoApprove(t *testing.T) {
	g := NewGate(DefaultThresholds())

	v := g.Evaluate(batch(150, 500))
	if !v.AutoApprove {
		t.Fatalf("expected auto-approval, verdict=%+v", v)
	}
	if v.Total != 150 || v.GPSValid != 150 || v.MaxCPM != 500 {
		t.Fatalf("verdict=%+v", v)
	}
}

func TestEvaluate_HotRecordBlocksApproval(t *testing.T) {
	g := NewGate(DefaultThresholds())
	ms := batch(150, 500)
	ms[42].CPM = 12000
	v := g.Evaluate(ms)
	if v.AutoApprove {
		t.Fatalf("one hot record must block auto-approval, verdict=%+v", v)
	}
	if v.MaxCPM != 12000 {
		t.Fatalf("max cpm = %d", v.MaxCPM)
	}
}

func TestEvaluate_SmallBatchNeverApproved(t *testing.T) {
	g := NewGate(DefaultThresholds())
	if v := g.Evaluate(batch(50, 10)); v.AutoApprove {
		t.Fatalf("batch below the record threshold must not auto-approve")
	}
}

func TestEvaluate_GPSFraction(t *testing.T) {
	g := NewGate(DefaultThresholds())
	ms := batch(100, 500)
	for i := 0; i < 15; i++ {
		ms[i].Latitude = 0
		ms[i].Longitude = 0
	}
	v := g.Evaluate(ms)
	if v.AutoApprove {
		t.Fatalf("85%% GPS-valid must not auto-approve, verdict=%+v", v)
	}
	if v.GPSValid != 85 {
		t.Fatalf("gps valid = %d", v.GPSValid)
	}
}

func TestEvaluate_EmptyBatch(t *testing.T) {
	g := NewGate(DefaultThresholds())
	v := g.Evaluate(nil)
	if v.AutoApprove || v.Total != 0 || v.MaxCPM != 0 {
		t.Fatalf("verdict=%+v", v)
	}
}

func TestEvaluate_TunableThresholds(t *testing.T) {
	g := NewGate(Thresholds{MinRecords: 10, MaxCPM: 1000, MinGPSFraction: 0.5})
	if v := g.Evaluate(batch(12, 800)); !v.AutoApprove {
		t.Fatalf("custom thresholds should approve, verdict=%+v", v)
	}
}
