package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models/postprocess"
	"github.com/nvr-ai/go-classify/util"
)

type prediction struct {
	Path string `json:"path"`
	*postprocess.Classification
	Error string `json:"error,omitempty"`
}

func predictCmd(a *app) *cobra.Command {
	var (
		dir        string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "predict [image]...",
		Short: "Classify image files",
		Long:  "Classify image files given as arguments or every image in --dir and print one line per file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && dir == "" {
				return fmt.Errorf("no images given, pass files or --dir")
			}

			var files []util.ImageFile
			if dir != "" {
				loaded, err := util.LoadDirectoryImageFiles(dir)
				if err != nil {
					return err
				}
				files = append(files, loaded...)
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, util.ImageFile{Path: path, Data: data})
			}
			if len(files) == 0 {
				return fmt.Errorf("no image files found in %s", dir)
			}

			engine, err := openEngine(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			failed := 0
			for _, f := range files {
				p := prediction{Path: f.Path}

				img, err := images.NewImage(f.Data)
				if err == nil {
					p.Classification, err = engine.Classify(cmd.Context(), img)
				}
				if err != nil {
					failed++
					p.Error = err.Error()
					a.logger.Warn("prediction failed", slog.String("path", f.Path), slog.Any("error", err))
				}

				if jsonOutput {
					if err := enc.Encode(p); err != nil {
						return err
					}
					continue
				}
				if p.Error != "" {
					fmt.Fprintf(out, "%s: error: %s\n", p.Path, p.Error)
					continue
				}
				fmt.Fprintf(out, "%s: %s (%.4f)\n", p.Path, p.Label, p.Confidence)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Classify every image in this directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output one JSON object per line")
	return cmd
}
