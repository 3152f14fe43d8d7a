// Package cli - Command line entry points of the classify binary.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/logging"
)

// extraCommands holds subcommands registered by build-tagged files.
var extraCommands []func(a *app) *cobra.Command

// app carries the state shared by every subcommand once the persistent
// flags have been parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the classify command tree.
//
// Commands provided:
//   - classify serve
//   - classify check
//   - classify inspect
//   - classify predict <image>... | --dir <dir>
//   - classify benchmark [--images <dir>] [--scenarios <file>]
//   - classify webcam (gocv builds only)
//
// Global flags: --config, --log-level, --log-format
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Image classification service",
		Long:  "Serve, verify and run an ONNX image classifier that maps uploads to class labels.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(serveCmd(a))
	cmd.AddCommand(checkCmd(a))
	cmd.AddCommand(inspectCmd(a))
	cmd.AddCommand(predictCmd(a))
	cmd.AddCommand(benchmarkCmd(a))
	for _, extra := range extraCommands {
		cmd.AddCommand(extra(a))
	}

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	logger, err := logging.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
