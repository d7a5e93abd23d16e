package warmcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/warmcache/codec"
)

func passingReport() *Report {
	return &Report{
		JobID:  "job-1",
		Status: JobCompleted,
		Categories: []CategoryStats{
			{Category: CategoryCatalog, Status: StatusDone, Attempted: 150, Succeeded: 150},
			{Category: CategoryUsers, Status: StatusDone, Attempted: 40, Succeeded: 40},
		},
		Telemetry: Telemetry{TotalKeys: 190, MemoryUsedBytes: 1 << 20, FragmentationRatio: 1.1},
	}
}

func TestEvaluatePasses(t *testing.T) {
	th := Thresholds{
		MinTotalKeys:     100,
		MinPerCategory:   map[Category]int64{CategoryCatalog: 100, CategoryUsers: 10},
		MaxFragmentation: 2.0,
	}
	if reasons := Evaluate(passingReport(), th); len(reasons) != 0 {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

func TestEvaluateCollectsEveryFailingReason(t *testing.T) {
	report := &Report{
		JobID:  "job-2",
		Status: JobFailed,
		Categories: []CategoryStats{
			{Category: CategoryCatalog, Status: StatusDone, Attempted: 50, Succeeded: 50},
		},
		Telemetry: Telemetry{TotalKeys: 50, FragmentationRatio: 3.0},
	}
	th := Thresholds{
		MinTotalKeys:     500,
		MinPerCategory:   map[Category]int64{CategoryCatalog: 100, CategoryUsers: 5},
		MaxFragmentation: 2.0,
	}

	reasons := Evaluate(report, th)
	// status, total keys, catalog below min, users missing, fragmentation
	if len(reasons) != 5 {
		t.Fatalf("got %d reasons, want 5: %v", len(reasons), reasons)
	}
	wantFragments := []string{"job status", "total keys", "catalog", "users", "fragmentation"}
	for i, frag := range wantFragments {
		if !strings.Contains(reasons[i], frag) {
			t.Errorf("reasons[%d] = %q, want it to mention %q", i, reasons[i], frag)
		}
	}
}

func TestEvaluateZeroFragmentationThresholdDisablesCheck(t *testing.T) {
	report := passingReport()
	report.Telemetry.FragmentationRatio = 99
	if reasons := Evaluate(report, Thresholds{}); len(reasons) != 0 {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

// seedSample stores a healthy sealed record under key.
func seedSample(t *testing.T, st *memStore, key string) {
	t.Helper()
	enc := codec.MustCBOR[map[string]any](true)
	payload, err := enc.Encode(map[string]any{"name": "widget"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := st.Set(context.Background(), key, sealValue(payload), time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newTestGate(t *testing.T, st *memStore) *Gate {
	t.Helper()
	g, err := NewGate(GateOptions{Store: st})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestGateValidatePassesWithLiveSamples(t *testing.T) {
	st := newMemStore()
	seedSample(t, st, "warm:catalog:item-1")
	seedSample(t, st, "warm:users:u-1")

	report := passingReport()
	report.Categories[0].SampleKey = "warm:catalog:item-1"
	report.Categories[1].SampleKey = "warm:users:u-1"

	d := newTestGate(t, st).Validate(context.Background(), report, Thresholds{MinTotalKeys: 1})
	if !d.Passed {
		t.Fatalf("decision failed: %v", d.Reasons)
	}
	if d.JobID != report.JobID {
		t.Fatalf("decision job id = %q, want %q", d.JobID, report.JobID)
	}
	if d.DecidedAt.IsZero() {
		t.Fatal("DecidedAt not set")
	}
}

func TestGateValidateFlagsMissingSampleKey(t *testing.T) {
	report := passingReport()
	report.Categories[0].SampleKey = "warm:catalog:gone"
	report.Categories[1].Succeeded = 0 // zero successes: no sample expected

	d := newTestGate(t, newMemStore()).Validate(context.Background(), report, Thresholds{})
	if d.Passed {
		t.Fatal("decision passed despite missing sample")
	}
	if len(d.Reasons) != 1 || !strings.Contains(d.Reasons[0], "missing") {
		t.Fatalf("reasons = %v, want one missing-key reason", d.Reasons)
	}
}

func TestGateValidateFlagsCorruptSample(t *testing.T) {
	st := newMemStore()
	// No envelope at all.
	if _, err := st.Set(context.Background(), "warm:catalog:bad", []byte("garbage"), time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Valid envelope, undecodable payload.
	if _, err := st.Set(context.Background(), "warm:users:bad", sealValue([]byte{0xff}), time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := passingReport()
	report.Categories[0].SampleKey = "warm:catalog:bad"
	report.Categories[1].SampleKey = "warm:users:bad"

	d := newTestGate(t, st).Validate(context.Background(), report, Thresholds{})
	if d.Passed {
		t.Fatal("decision passed despite corrupt samples")
	}
	if len(d.Reasons) != 2 {
		t.Fatalf("reasons = %v, want 2", d.Reasons)
	}
}
