package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/util"
)

// Suite manages and executes benchmark scenarios against one engine.
type Suite struct {
	engine    inference.Engine
	outputDir string
	corpus    []image.Image
	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - engine: The engine every scenario classifies with.
//   - outputDir: Where SaveResults writes its files.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(engine inference.Engine, outputDir string) *Suite {
	return &Suite{
		engine:    engine,
		outputDir: outputDir,
	}
}

// AddScenario adds a scenario to the suite.
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarios adds every scenario of a set.
func (bs *Suite) AddScenarios(set *ScenarioSet) {
	for _, s := range set.Scenarios {
		bs.AddScenario(s)
	}
}

// Scenarios returns the configured scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]Scenario(nil), bs.scenarios...)
}

// LoadCorpus decodes the images of a directory. Uploads are re-encoded from
// them for every scenario. Without a corpus a synthetic pattern is used.
//
// Arguments:
//   - dir: Directory containing image files.
//
// Returns:
//   - error: A read error, or an error when no image could be decoded.
func (bs *Suite) LoadCorpus(dir string) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	corpus := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, _, err := images.Decode(f.Data)
		if err != nil {
			slog.Debug("skipping corpus file", slog.String("path", f.Path), slog.Any("error", err))
			continue
		}
		corpus = append(corpus, img)
	}
	if len(corpus) == 0 {
		return fmt.Errorf("no valid images found in directory: %s", dir)
	}

	bs.mu.Lock()
	bs.corpus = corpus
	bs.mu.Unlock()
	return nil
}

func (bs *Suite) uploads(scenario Scenario) ([][]byte, error) {
	bs.mu.RLock()
	sources := bs.corpus
	bs.mu.RUnlock()

	w, h := scenario.Resolution.Width, scenario.Resolution.Height
	if len(sources) == 0 {
		sources = []image.Image{Synthetic(w, h)}
	}

	out := make([][]byte, 0, len(sources))
	for _, src := range sources {
		img := src
		if b := src.Bounds(); b.Dx() != w || b.Dy() != h {
			resized, err := images.Resize(src, w, h, images.InterpolationBilinear)
			if err != nil {
				return nil, err
			}
			img = resized
		}
		data, err := Encode(img, scenario.Format)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// RunScenario executes a single scenario.
//
// Arguments:
//   - ctx: Cancels the run.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: The measured performance.
//   - error: An invalid scenario, an encoding error or ctx's error.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if scenario.Iterations <= 0 {
		return nil, fmt.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}
	if scenario.Resolution.Width <= 0 || scenario.Resolution.Height <= 0 {
		return nil, fmt.Errorf("scenario %s: invalid resolution %dx%d",
			scenario.Name, scenario.Resolution.Width, scenario.Resolution.Height)
	}
	concurrency := scenario.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	uploads, err := bs.uploads(scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, _, err := bs.classify(ctx, uploads[i%len(uploads)]); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
		Labels:    make(map[string]int),
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan int)
	)

	startMem := readMemStats()
	start := time.Now()

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				parse, out, err := bs.classify(ctx, uploads[i%len(uploads)])

				mu.Lock()
				metrics.ParseDuration += parse
				if out != nil {
					metrics.ClassifyDuration += out.took
				}
				if err != nil {
					metrics.Errors++
				} else {
					metrics.Labels[out.name]++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := 0; i < scenario.Iterations; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	metrics.TotalDuration = time.Since(start)
	metrics.MemoryStats = memoryMetrics(startMem, readMemStats())
	metrics.CPUStats = cpuMetrics()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := scenario.Iterations
	metrics.ImagesPerSecond = float64(n) / metrics.TotalDuration.Seconds()
	metrics.AverageLatency = (metrics.ParseDuration + metrics.ClassifyDuration) / time.Duration(n)
	metrics.ErrorRate = float64(metrics.Errors) / float64(n)

	return metrics, nil
}

type outcome struct {
	name string
	took time.Duration
}

// classify runs one upload and returns the header parse time and the label
// with the classification time.
func (bs *Suite) classify(ctx context.Context, data []byte) (time.Duration, *outcome, error) {
	start := time.Now()
	img, err := images.NewImage(data)
	parse := time.Since(start)
	if err != nil {
		return parse, nil, err
	}

	start = time.Now()
	result, err := bs.engine.Classify(ctx, img)
	took := time.Since(start)
	if err != nil {
		return parse, &outcome{took: took}, err
	}
	return parse, &outcome{name: result.Label, took: took}, nil
}

// RunAll executes every configured scenario. A failing scenario is logged
// and skipped; a cancelled ctx stops the run.
//
// Returns:
//   - []PerformanceMetrics: The results of the scenarios that completed.
//   - error: ctx's error when cancelled.
func (bs *Suite) RunAll(ctx context.Context) ([]PerformanceMetrics, error) {
	for _, scenario := range bs.Scenarios() {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return bs.Results(), err
			}
			slog.Error("scenario failed", slog.String("scenario", scenario.Name), slog.Any("error", err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		slog.Info("scenario completed",
			slog.String("scenario", scenario.Name),
			slog.Float64("images_per_second", metrics.ImagesPerSecond),
			slog.Duration("average_latency", metrics.AverageLatency))
	}
	return bs.Results(), nil
}

// Results returns all benchmark results
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults writes the results as JSON and a CSV summary to the output
// directory.
//
// Returns:
//   - string: The JSON file.
//   - string: The CSV file.
//   - error: A write error.
func (bs *Suite) SaveResults() (string, string, error) {
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write results file: %w", err)
	}

	file, err := os.Create(summaryFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()
	if err := WriteCSV(file, results); err != nil {
		return "", "", fmt.Errorf("failed to save summary CSV: %w", err)
	}

	return resultsFile, summaryFile, nil
}

// WriteCSV writes one summary row per result.
func WriteCSV(w io.Writer, results []PerformanceMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"scenario", "resolution", "format", "concurrency", "images_per_second",
		"avg_latency_ms", "total_ms", "alloc_mb", "errors", "error_rate",
	}); err != nil {
		return err
	}

	for _, r := range results {
		if err := cw.Write([]string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			string(r.Scenario.Format),
			strconv.Itoa(r.Scenario.Concurrency),
			strconv.FormatFloat(r.ImagesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.AverageLatency.Microseconds())/1e3, 'f', 3, 64),
			strconv.FormatFloat(float64(r.TotalDuration.Microseconds())/1e3, 'f', 3, 64),
			strconv.FormatFloat(float64(r.MemoryStats.TotalAllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.Itoa(r.Errors),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the results as an aligned table.
func WriteSummary(w io.Writer, results []PerformanceMetrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tIMAGES/S\tAVG LATENCY\tERRORS")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%d\n", r.Scenario.Name, r.ImagesPerSecond, r.AverageLatency, r.Errors)
	}
	return tw.Flush()
}
