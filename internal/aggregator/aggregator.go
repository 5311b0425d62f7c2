package aggregator

import (
	"sync"

	"notez-go/internal/types"
)

type Insight struct {
	Completed       int            `json:"completed"`
	Failed          int            `json:"failed"`
	FailuresByStage map[string]int `json:"failures_by_stage"`
	FailureRate     float64        `json:"failure_rate"`
	AudioSeconds    float64        `json:"audio_seconds"`
	AvgDurationSec  float64        `json:"avg_duration_sec"`
}

// Aggregator counts terminal job outcomes for the lifetime of the process.
type Aggregator struct {
	mu        sync.Mutex
	completed int
	failed    int
	byStage   map[types.Stage]int
	audioSec  float64
}

func New() *Aggregator {
	return &Aggregator{byStage: map[types.Stage]int{}}
}

// Record counts a terminal job. Jobs still in flight are ignored.
func (a *Aggregator) Record(job *types.Job) {
	if job == nil || !job.IsTerminal() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if job.Stage == types.StageComplete {
		a.completed++
		a.audioSec += job.DurationSeconds
		return
	}
	a.failed++
	a.byStage[job.FailedStage]++
}

func (a *Aggregator) Snapshot() Insight {
	a.mu.Lock()
	defer a.mu.Unlock()

	byStage := make(map[string]int, len(a.byStage))
	for k, v := range a.byStage {
		byStage[string(k)] = v
	}
	in := Insight{
		Completed:       a.completed,
		Failed:          a.failed,
		FailuresByStage: byStage,
		AudioSeconds:    a.audioSec,
	}
	if total := a.completed + a.failed; total > 0 {
		in.FailureRate = float64(a.failed) / float64(total)
	}
	if a.completed > 0 {
		in.AvgDurationSec = a.audioSec / float64(a.completed)
	}
	return in
}
