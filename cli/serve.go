package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/profiler"
	"github.com/nvr-ai/go-classify/server"
)

// runServer blocks serving s until ctx is done. Tests replace it to drive the
// handler directly.
var runServer = func(ctx context.Context, s *server.Server) error {
	return s.Run(ctx)
}

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: "Load the model and serve the upload page and the prediction API. " +
			"When the model fails to load the service still starts and reports itself degraded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a.logger.Info("loading resources",
				slog.String("model", a.cfg.Model.Path),
				slog.String("class_indices", a.cfg.Model.ClassIndices))

			engine, err := openEngine(ctx, a.cfg, a.logger)
			if err != nil {
				a.logger.Error("failed to load model, serving degraded", slog.Any("error", err))
				engine = nil
			} else {
				info := engine.Info()
				a.logger.Info("model loaded",
					slog.String("recipe", string(info.Model)),
					slog.String("backend", string(info.Backend)),
					slog.Int("classes", info.Classes),
					slog.Int("pool_size", info.PoolSize))
				defer func() {
					if err := engine.Close(); err != nil {
						a.logger.Warn("failed to close engine", slog.Any("error", err))
					}
				}()
			}

			var prof *profiler.RuntimeProfiler
			if a.cfg.Server.ProfileInterval > 0 {
				prof = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
					ReportInterval: a.cfg.Server.ProfileInterval,
					Logger:         a.logger,
				})
				if engine != nil {
					prof.AddMetricsCollector(profiler.EngineCollector(engine))
				}
				prof.Start()
				defer prof.Stop()
			}

			return runServer(ctx, newServer(a.cfg, engine, a.logger, prof))
		},
	}
}

func newServer(cfg *config.Config, engine inference.Engine, logger *slog.Logger, prof *profiler.RuntimeProfiler) *server.Server {
	opts := server.Options{
		Addr:            cfg.Server.Addr(),
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		MaxImagePixels:  cfg.Server.MaxImagePixels,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Logger:          logger,
		Profiler:        prof,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	return server.New(engine, opts)
}
