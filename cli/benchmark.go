package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/benchmark"
	"github.com/nvr-ai/go-classify/images"
)

func benchmarkCmd(a *app) *cobra.Command {
	var (
		corpus       string
		scenarioFile string
		outputDir    string
		resolutions  []string
		formats      []string
		iterations   int
		warmup       int
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure classification throughput",
		Long: "Classify synthetic or corpus uploads for every resolution and format pair, " +
			"print a summary and save JSON and CSV results.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var set *benchmark.ScenarioSet
			if scenarioFile != "" {
				loaded, err := benchmark.LoadScenarioSet(scenarioFile)
				if err != nil {
					return err
				}
				set = loaded
			} else {
				res := make([]benchmark.Resolution, 0, len(resolutions))
				for _, r := range resolutions {
					parsed, err := benchmark.ParseResolution(r)
					if err != nil {
						return err
					}
					res = append(res, parsed)
				}
				fmts := make([]images.ImageFormat, 0, len(formats))
				for _, f := range formats {
					fmts = append(fmts, images.ImageFormat(f))
				}
				set = benchmark.Matrix(res, fmts, iterations, warmup, concurrency)
			}

			engine, err := openEngine(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			defer engine.Close()

			suite := benchmark.NewSuite(engine, outputDir)
			suite.AddScenarios(set)
			if corpus != "" {
				if err := suite.LoadCorpus(corpus); err != nil {
					return err
				}
			}

			results, err := suite.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := benchmark.WriteSummary(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			jsonFile, csvFile, err := suite.SaveResults()
			if err != nil {
				return err
			}
			a.logger.Info("benchmark results saved",
				slog.String("results", jsonFile),
				slog.String("summary", csvFile))
			return nil
		},
	}

	cmd.Flags().StringVar(&corpus, "images", "", "Directory of corpus images, synthetic uploads when empty")
	cmd.Flags().StringVar(&scenarioFile, "scenarios", "", "Scenario set JSON file, overrides the matrix flags")
	cmd.Flags().StringVar(&outputDir, "output", "./benchmark_results", "Output directory for results")
	cmd.Flags().StringSliceVar(&resolutions, "resolutions", []string{"224x224", "1280x720"}, "Upload resolutions as WxH")
	cmd.Flags().StringSliceVar(&formats, "formats", []string{"jpeg", "png", "webp"}, "Upload formats")
	cmd.Flags().IntVar(&iterations, "iterations", 50, "Iterations per scenario")
	cmd.Flags().IntVar(&warmup, "warmup", 5, "Warmup runs per scenario")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Concurrent clients per scenario")
	return cmd
}
