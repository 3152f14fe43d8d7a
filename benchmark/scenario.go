// Package benchmark - Functionality for running classification benchmarks.
package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-classify/images"
)

// Resolution represents image dimensions for benchmarking
type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// NewResolution creates a resolution named WxH.
func NewResolution(width, height int) Resolution {
	return Resolution{Width: width, Height: height, Name: fmt.Sprintf("%dx%d", width, height)}
}

// ParseResolution parses "WxH", for example "640x480".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q, want WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution width in %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution height in %q", s)
	}
	return NewResolution(width, height), nil
}

// CommonResolutions are upload sizes typical for phone and camera photos.
var CommonResolutions = []Resolution{
	NewResolution(224, 224),
	NewResolution(640, 480),
	NewResolution(1280, 720),
	NewResolution(1920, 1080),
	NewResolution(4032, 3024),
}

// Scenario defines a specific benchmark configuration. Each iteration
// decodes one upload of Resolution encoded as Format and classifies it.
type Scenario struct {
	Name       string             `json:"name"`
	Resolution Resolution         `json:"resolution"`
	Format     images.ImageFormat `json:"format"`
	Iterations int                `json:"iterations"`
	WarmupRuns int                `json:"warmup_runs"`
	// Concurrency is the number of goroutines submitting uploads at once.
	Concurrency int `json:"concurrency"`
}

// ScenarioBuilder helps build scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Resolution:  NewResolution(224, 224),
			Format:      images.FormatJPEG,
			Iterations:  100,
			WarmupRuns:  10,
			Concurrency: 1,
		},
	}
}

// WithResolution sets the image resolution
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = NewResolution(width, height)
	return sb
}

// WithImageFormat sets the image format
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.Format = format
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithConcurrency sets the number of concurrent clients
func (sb *ScenarioBuilder) WithConcurrency(n int) *ScenarioBuilder {
	sb.scenario.Concurrency = n
	return sb
}

// Build returns the configured scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet is a named list of scenarios stored as JSON.
type ScenarioSet struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scenarios   []Scenario `json:"scenarios"`
}

// Matrix creates one scenario for every resolution and format pair.
//
// Arguments:
//   - resolutions: The upload sizes.
//   - formats: The upload encodings.
//   - iterations: Iterations per scenario.
//   - warmup: Warmup runs per scenario.
//   - concurrency: Concurrent clients per scenario.
//
// Returns:
//   - *ScenarioSet: The scenarios, resolutions outermost.
func Matrix(resolutions []Resolution, formats []images.ImageFormat, iterations, warmup, concurrency int) *ScenarioSet {
	set := &ScenarioSet{
		Name:        "matrix",
		Description: "Every resolution and format pair",
	}
	for _, r := range resolutions {
		for _, f := range formats {
			set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("%s_%s", r.Name, f)).
				WithResolution(r.Width, r.Height).
				WithImageFormat(f).
				WithIterations(iterations).
				WithWarmupRuns(warmup).
				WithConcurrency(concurrency).
				Build())
		}
	}
	return set
}

// SaveScenarioSet writes a scenario set as indented JSON.
func SaveScenarioSet(set *ScenarioSet, filename string) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario set: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}
	return nil
}

// LoadScenarioSet reads a scenario set written by SaveScenarioSet.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var set ScenarioSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return &set, nil
}
