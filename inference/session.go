// Package inference - Classification engines backed by pooled ONNX Runtime sessions.
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TensorSession is a model session with preallocated float32 tensors.
// *providers.Session implements it.
type TensorSession interface {
	Input() []float32
	Output() []float32
	Run() error
	Close() error
}

// SessionStats are the counters of a profiled session.
type SessionStats struct {
	Inferences   int64         `json:"inferences"`
	Errors       int64         `json:"errors"`
	TotalLatency time.Duration `json:"total_latency"`
	LastLatency  time.Duration `json:"last_latency"`
}

// AverageLatency is the mean latency of all inferences.
func (s SessionStats) AverageLatency() time.Duration {
	if s.Inferences == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Inferences)
}

// Add returns the sum of two sets of counters. The last latency of other wins
// when it ran at all.
func (s SessionStats) Add(other SessionStats) SessionStats {
	out := SessionStats{
		Inferences:   s.Inferences + other.Inferences,
		Errors:       s.Errors + other.Errors,
		TotalLatency: s.TotalLatency + other.TotalLatency,
		LastLatency:  s.LastLatency,
	}
	if other.Inferences > 0 {
		out.LastLatency = other.LastLatency
	}
	return out
}

// ProfiledSession wraps a session with latency tracking and copies data in
// and out of its tensors.
//
// A ProfiledSession runs one inference at a time; use a Pool to run several.
type ProfiledSession struct {
	mu      sync.Mutex
	session TensorSession
	stats   SessionStats
}

// NewProfiledSession wraps a session.
//
// Arguments:
//   - session: The session to profile; ownership moves to the ProfiledSession.
//
// Returns:
//   - *ProfiledSession: The profiled session.
func NewProfiledSession(session TensorSession) *ProfiledSession {
	return &ProfiledSession{session: session}
}

// Run copies input into the session, runs it and returns a copy of the output.
//
// Arguments:
//   - ctx: Checked before the run starts; a native run cannot be interrupted.
//   - input: Exactly as many values as the input tensor holds.
//
// Returns:
//   - []float32: The output values.
//   - error: Execution error if any.
func (ps *ProfiledSession) Run(ctx context.Context, input []float32) ([]float32, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := ps.session.Input()
	if len(dst) != len(input) {
		return nil, fmt.Errorf("input has %d values, tensor holds %d", len(input), len(dst))
	}
	copy(dst, input)

	start := time.Now()
	err := ps.session.Run()
	elapsed := time.Since(start)

	ps.stats.Inferences++
	ps.stats.TotalLatency += elapsed
	ps.stats.LastLatency = elapsed
	if err != nil {
		ps.stats.Errors++
		return nil, err
	}

	return append([]float32(nil), ps.session.Output()...), nil
}

// Stats returns the session counters.
func (ps *ProfiledSession) Stats() SessionStats {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.stats
}

// ResetStats clears all performance counters.
func (ps *ProfiledSession) ResetStats() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.stats = SessionStats{}
}

// Close releases the wrapped session.
func (ps *ProfiledSession) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return nil
	}
	err := ps.session.Close()
	ps.session = nil
	return err
}
