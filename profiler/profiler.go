// Package profiler - Periodic runtime and engine reports for long running services.
package profiler

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-classify/inference"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// CollectorFunc adapts a function to MetricsCollector.
type CollectorFunc func() map[string]float64

// CollectMetrics calls f.
func (f CollectorFunc) CollectMetrics() map[string]float64 { return f() }

// EngineCollector samples the inference counters of an engine.
func EngineCollector(engine inference.Engine) MetricsCollector {
	return CollectorFunc(func() map[string]float64 {
		total := engine.Stats().Total
		return map[string]float64{
			"engine_inferences":     float64(total.Inferences),
			"engine_errors":         float64(total.Errors),
			"engine_avg_latency_ms": float64(total.AverageLatency().Microseconds()) / 1e3,
		}
	})
}

// RuntimeProfiler samples memory, goroutines and registered collectors and
// logs a status report at a fixed interval. Every method is safe on a nil
// profiler so callers can leave profiling disabled.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	lastGCCount uint32

	customMetrics  map[string]*MetricTracker
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func (t *MetricTracker) add(value float64, window int) {
	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.values = append(t.values, value)
	t.sum += value
	if len(t.values) > window {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.count++
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, window int) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if t.count == 0 || d > t.maxTime {
		t.maxTime = d
	}
	t.durations = append(t.durations, d)
	t.totalTime += d
	if len(t.durations) > window {
		t.totalTime -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 1m)
	ReportInterval time.Duration
	// SampleInterval specifies how often to collect samples (default: 5s)
	SampleInterval time.Duration
	// MaxSamples is the sliding window of every tracker (default: 120)
	MaxSamples int
	// Logger receives the reports (default: slog.Default())
	Logger *slog.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 5 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 120
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling and reporting in the background. Calling Start on
// a running profiler does nothing.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel
	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.loop(ctx, rp.sampleInterval, rp.Sample)
	go rp.loop(ctx, rp.reportInterval, rp.Report)
}

func (rp *RuntimeProfiler) loop(ctx context.Context, every time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop stops the background goroutines, waits for them to exit, then takes a
// last sample and logs a final report.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
	rp.Sample()
	rp.Report()
}

// AddMetricsCollector registers a collector sampled on every Sample.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetric(name, value)
}

func (rp *RuntimeProfiler) recordMetric(name string, value float64) {
	tracker, ok := rp.customMetrics[name]
	if !ok {
		tracker = &MetricTracker{}
		rp.customMetrics[name] = tracker
	}
	tracker.add(value, rp.maxSamples)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation records the duration of a completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, d time.Duration) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operationTimes[name]
	if !ok {
		tracker = &TimeTracker{}
		rp.operationTimes[name] = tracker
	}
	tracker.add(d, rp.maxSamples)
}

// Sample reads the memory statistics and every collector once.
func (rp *RuntimeProfiler) Sample() {
	if rp == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.Lock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.memStats = mem
	rp.recordMetric("goroutines", float64(runtime.NumGoroutine()))
	rp.mu.Unlock()

	for _, c := range collectors {
		values := c.CollectMetrics()
		rp.mu.Lock()
		for name, v := range values {
			rp.recordMetric(name, v)
		}
		rp.mu.Unlock()
	}
}

// Summary aggregates a tracked metric.
type Summary struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// TimingSummary aggregates a tracked operation.
type TimingSummary struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Snapshot is a point in time view of the profiler.
type Snapshot struct {
	Uptime     time.Duration            `json:"uptime"`
	Goroutines int                      `json:"goroutines"`
	CGOCalls   int64                    `json:"cgo_calls"`
	HeapAlloc  uint64                   `json:"heap_alloc"`
	Sys        uint64                   `json:"sys"`
	NumGC      uint32                   `json:"num_gc"`
	NewGC      uint32                   `json:"new_gc"`
	Metrics    map[string]Summary       `json:"metrics"`
	Operations map[string]TimingSummary `json:"operations"`
}

// Snapshot returns the current statistics. NewGC counts the collections
// since the previous Report.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	if rp == nil {
		return Snapshot{}
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.snapshot()
}

func (rp *RuntimeProfiler) snapshot() Snapshot {
	s := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		CGOCalls:   runtime.NumCgoCall(),
		HeapAlloc:  rp.memStats.HeapAlloc,
		Sys:        rp.memStats.Sys,
		NumGC:      rp.memStats.NumGC,
		Metrics:    make(map[string]Summary, len(rp.customMetrics)),
		Operations: make(map[string]TimingSummary, len(rp.operationTimes)),
	}
	if rp.memStats.NumGC > rp.lastGCCount {
		s.NewGC = rp.memStats.NumGC - rp.lastGCCount
	}

	for name, t := range rp.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		s.Metrics[name] = Summary{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		}
	}
	for name, t := range rp.operationTimes {
		if len(t.durations) == 0 {
			continue
		}
		s.Operations[name] = TimingSummary{
			Avg:   t.totalTime / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
			Count: t.count,
		}
	}
	return s
}

// Report logs the current snapshot.
func (rp *RuntimeProfiler) Report() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	s := rp.snapshot()
	rp.lastGCCount = rp.memStats.NumGC
	rp.mu.Unlock()

	attrs := []any{
		slog.Duration("uptime", s.Uptime.Truncate(time.Second)),
		slog.Int("goroutines", s.Goroutines),
		slog.Int64("cgo_calls", s.CGOCalls),
		slog.Uint64("heap_alloc", s.HeapAlloc),
		slog.Uint64("sys", s.Sys),
		slog.Uint64("new_gc", uint64(s.NewGC)),
	}

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := s.Metrics[name]
		attrs = append(attrs, slog.Group(name,
			slog.Float64("avg", m.Avg), slog.Float64("min", m.Min), slog.Float64("max", m.Max)))
	}

	ops := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	for _, name := range ops {
		o := s.Operations[name]
		attrs = append(attrs, slog.Group(name,
			slog.Duration("avg", o.Avg), slog.Duration("max", o.Max), slog.Int64("count", o.Count)))
	}

	rp.logger.Info("runtime profile", attrs...)
}
