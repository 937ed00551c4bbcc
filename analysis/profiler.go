package analysis

import (
	"sync"
	"time"
)

// Profiler accumulates wall-clock timings per analysis stage. It is plain
// state owned by whoever constructs it; there is no package-level instance,
// so two callers never observe each other's timings.
//
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu     sync.Mutex
	stages map[string]StageStats
}

// StageStats is the accumulated timing for one named stage.
type StageStats struct {
	Calls int           `json:"calls"`
	Total time.Duration `json:"total"`
}

func NewProfiler() *Profiler {
	return &Profiler{stages: make(map[string]StageStats)}
}

// StartStage begins timing one stage invocation and returns the stop func.
func (p *Profiler) StartStage(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.mu.Lock()
		defer p.mu.Unlock()
		s := p.stages[name]
		s.Calls++
		s.Total += elapsed
		p.stages[name] = s
	}
}

// Snapshot returns a copy of all accumulated stage timings.
func (p *Profiler) Snapshot() map[string]StageStats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]StageStats, len(p.stages))
	for name, s := range p.stages {
		out[name] = s
	}
	return out
}

// Reset discards all accumulated timings.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = make(map[string]StageStats)
}
