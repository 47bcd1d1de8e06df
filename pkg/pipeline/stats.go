package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage identifies one latency-tracked pipeline stage.
type Stage string

const (
	StageVAD      Stage = "vad"
	StageNoise    Stage = "noise"
	StageLanguage Stage = "language"
	StageCommand  Stage = "command"
	StagePipeline Stage = "pipeline"
)

// statStages lists every stage in a stable order.
var statStages = []Stage{StageVAD, StageNoise, StageLanguage, StageCommand, StagePipeline}

// Stats collects per-stage latency samples and counter values for status
// display. It maintains a bounded ring buffer of recent latency
// observations per stage from which percentiles are computed on demand.
//
// Thread-safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	stages map[Stage]*latencyBuffer

	utterances int64
	errors     int64
}

// NewStats creates a Stats with the given window size (maximum number of
// latency samples retained per stage). Non-positive sizes default to 100.
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 100
	}
	stages := make(map[Stage]*latencyBuffer, len(statStages))
	for _, st := range statStages {
		stages[st] = newLatencyBuffer(windowSize)
	}
	return &Stats{stages: stages}
}

// Record adds a latency sample for a stage. Unknown stages are ignored.
func (s *Stats) Record(stage Stage, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lb, ok := s.stages[stage]; ok {
		lb.add(d)
	}
}

// IncrUtterances increments the processed-utterance counter.
func (s *Stats) IncrUtterances() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances++
}

// IncrErrors increments the error counter.
func (s *Stats) IncrErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// LatencyPercentiles holds p50, p95 and p99 values for a latency stage.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Snapshot captures a point-in-time view of all pipeline statistics.
type Snapshot struct {
	Stages     map[Stage]LatencyPercentiles
	Utterances int64
	Errors     int64
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Stages:     make(map[Stage]LatencyPercentiles, len(s.stages)),
		Utterances: s.utterances,
		Errors:     s.errors,
	}
	for st, lb := range s.stages {
		out.Stages[st] = lb.percentiles()
	}
	return out
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) *latencyBuffer {
	return &latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	// Copy and sort the valid samples.
	sorted := make([]time.Duration, n)
	copy(sorted, lb.data[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
