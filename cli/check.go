package cli

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/inference/providers"
)

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the model and class indices load and predict",
		Long: "Load the class indices and the model, classify an all-black image of the " +
			"model's input size and print the result.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := a.cfg

			fmt.Fprintf(out, "Config file:   %s\n", orNone(cfg.File))
			fmt.Fprintf(out, "Model:         %s\n", cfg.Model.Path)
			fmt.Fprintf(out, "Class indices: %s\n", cfg.Model.ClassIndices)
			if cfg.Model.Head != "" {
				fmt.Fprintf(out, "Head:          %s\n", cfg.Model.Head)
			}

			engine, err := openEngine(cmd.Context(), cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			defer engine.Close()

			info := engine.Info()
			fmt.Fprintf(out, "ORT library:   %s\n", orNone(providers.LibraryPath()))
			fmt.Fprintf(out, "Loaded %d classes\n", info.Classes)
			fmt.Fprintf(out, "Recipe:        %s (%s)\n", info.Model, info.Backend)
			fmt.Fprintf(out, "Input:         %s %v %s\n", info.InputName, info.InputShape, info.Layout)
			fmt.Fprintf(out, "Output:        %s %v\n", info.OutputName, info.OutputShape)
			if len(info.Head) > 0 {
				fmt.Fprintf(out, "Head layers:   %v\n", info.Head)
			}
			for _, note := range info.Notes {
				fmt.Fprintf(out, "Note:          %s\n", note)
			}

			width, height, err := inputSize(info)
			if err != nil {
				return err
			}
			result, err := engine.ClassifyImage(cmd.Context(), image.NewNRGBA(image.Rect(0, 0, width, height)))
			if err != nil {
				return fmt.Errorf("failed to classify test image: %w", err)
			}

			fmt.Fprintf(out, "Raw output shape: [1 %d]\n", len(result.Scores))
			fmt.Fprintf(out, "Predicted index:  %d\n", result.Index)
			fmt.Fprintf(out, "Predicted label:  %s\n", result.Label)
			fmt.Fprintln(out, "VERIFICATION SUCCESSFUL")
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
