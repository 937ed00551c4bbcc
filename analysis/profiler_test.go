package analysis

import "testing"

func TestProfiler_AccumulatesStages(t *testing.T) {
	t.Parallel()

	p := NewProfiler()
	stop := p.StartStage("extract")
	stop()
	stop = p.StartStage("extract")
	stop()
	p.StartStage("cluster")()

	snap := p.Snapshot()
	if snap["extract"].Calls != 2 {
		t.Fatalf("extract calls=%d, want 2", snap["extract"].Calls)
	}
	if snap["cluster"].Calls != 1 {
		t.Fatalf("cluster calls=%d, want 1", snap["cluster"].Calls)
	}
	if snap["extract"].Total < 0 {
		t.Fatalf("extract total=%v, want non-negative", snap["extract"].Total)
	}

	// Snapshot hands out a copy, not the live map.
	snap["extract"] = StageStats{Calls: 99}
	if p.Snapshot()["extract"].Calls != 2 {
		t.Fatalf("snapshot mutation leaked into the profiler")
	}

	p.Reset()
	if got := p.Snapshot(); len(got) != 0 {
		t.Fatalf("after Reset snapshot=%v, want empty", got)
	}
}

func TestProfiler_NilIsSafe(t *testing.T) {
	t.Parallel()

	var p *Profiler
	p.StartStage("anything")()
	p.Reset()
	if got := p.Snapshot(); got != nil {
		t.Fatalf("nil profiler snapshot=%v, want nil", got)
	}
}
