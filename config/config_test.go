package config

import (
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }

func TestMergeAppliesOnlyNonNilFields(t *testing.T) {
	base := ManagerConfig{
		Enabled:               true,
		AutoRebalance:         true,
		AutoProfitTaking:      true,
		MonitorIntervalSecs:   60,
		RebalanceThreshold:    5.0,
		ProfitTakingThreshold: 10.0,
		RiskPerTrade:          1.5,
		TargetAllocations:     map[string]float64{"BTCUSDT": 50.0},
	}

	merged := base.Merge(ManagerConfigPatch{
		ProfitTakingThreshold: floatPtr(15.0),
		AutoRebalance:         boolPtr(false),
	})

	if merged.ProfitTakingThreshold != 15.0 {
		t.Errorf("ProfitTakingThreshold = %v, want 15.0", merged.ProfitTakingThreshold)
	}
	if merged.AutoRebalance {
		t.Error("AutoRebalance should be false after merge")
	}
	if merged.RebalanceThreshold != 5.0 {
		t.Errorf("RebalanceThreshold changed to %v, want untouched 5.0", merged.RebalanceThreshold)
	}
	if merged.MonitorIntervalSecs != 60 {
		t.Errorf("MonitorIntervalSecs changed to %v, want untouched 60", merged.MonitorIntervalSecs)
	}
}

func TestMergeRejectsNonPositiveValues(t *testing.T) {
	base := ManagerConfig{MonitorIntervalSecs: 60, RebalanceThreshold: 5.0}

	merged := base.Merge(ManagerConfigPatch{
		MonitorIntervalSecs: intPtr(0),
		RebalanceThreshold:  floatPtr(-1.0),
	})

	if merged.MonitorIntervalSecs != 60 {
		t.Errorf("MonitorIntervalSecs = %v, want 60 (zero rejected)", merged.MonitorIntervalSecs)
	}
	if merged.RebalanceThreshold != 5.0 {
		t.Errorf("RebalanceThreshold = %v, want 5.0 (negative rejected)", merged.RebalanceThreshold)
	}
}

func TestMergeCopiesTargetAllocations(t *testing.T) {
	patchTargets := map[string]float64{"ETHUSDT": 30.0}
	merged := ManagerConfig{}.Merge(ManagerConfigPatch{TargetAllocations: &patchTargets})

	patchTargets["ETHUSDT"] = 99.0
	if merged.TargetAllocations["ETHUSDT"] != 30.0 {
		t.Errorf("merged targets aliased the patch map: got %v", merged.TargetAllocations["ETHUSDT"])
	}
}

func TestPatchFields(t *testing.T) {
	patch := ManagerConfigPatch{
		Enabled:      boolPtr(true),
		RiskPerTrade: floatPtr(2.0),
	}

	fields := patch.Fields()
	if len(fields) != 2 {
		t.Fatalf("Fields() returned %d entries, want 2: %v", len(fields), fields)
	}
	want := map[string]bool{"enabled": true, "risk_per_trade": true}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected field %q", f)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	tests := []struct {
		name string
		cfg  ManagerConfig
		got  func(ManagerConfig) time.Duration
		want time.Duration
	}{
		{"monitor interval set", ManagerConfig{MonitorIntervalSecs: 30}, ManagerConfig.MonitorInterval, 30 * time.Second},
		{"monitor interval below floor", ManagerConfig{MonitorIntervalSecs: 2}, ManagerConfig.MonitorInterval, 60 * time.Second},
		{"batch delay set", ManagerConfig{MediumBatchDelaySecs: 10}, ManagerConfig.MediumBatchDelay, 10 * time.Second},
		{"batch delay default", ManagerConfig{}, ManagerConfig.MediumBatchDelay, 5 * time.Second},
		{"cooldown set", ManagerConfig{RebalanceCooldownHours: 6}, ManagerConfig.RebalanceCooldown, 6 * time.Hour},
		{"cooldown default", ManagerConfig{}, ManagerConfig.RebalanceCooldown, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := tt.got(tt.cfg); d != tt.want {
				t.Errorf("got %v, want %v", d, tt.want)
			}
		})
	}
}
