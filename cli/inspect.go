package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/inference/providers"
)

func inspectCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect [model.onnx]",
		Short: "Print model metadata, inputs and outputs",
		Long:  "Read the metadata and the declared inputs and outputs of a model file. Class indices are not needed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if len(args) == 1 {
				cfg.Model.Path = args[0]
			}

			info, err := inspectModel(&cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printModelInfo(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printModelInfo(out io.Writer, info *providers.ModelInfo) error {
	md := info.Metadata
	fmt.Fprintf(out, "Model:       %s\n", info.Path)
	fmt.Fprintf(out, "Producer:    %s\n", md.Producer)
	fmt.Fprintf(out, "Graph:       %s\n", md.Graph)
	fmt.Fprintf(out, "Domain:      %s\n", md.Domain)
	fmt.Fprintf(out, "Version:     %d\n", md.Version)
	fmt.Fprintf(out, "Description: %s\n", md.Description)
	for _, k := range info.CustomKeys() {
		fmt.Fprintf(out, "  %s = %s\n", k, md.Custom[k])
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tTYPE\tTENSOR")
	for _, t := range info.Inputs {
		fmt.Fprintf(w, "input\t%s\t%s\n", t.ElementType, t.Port())
	}
	for _, t := range info.Outputs {
		fmt.Fprintf(w, "output\t%s\t%s\n", t.ElementType, t.Port())
	}
	return w.Flush()
}
