//go:build gocv
// +build gocv

package cli

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func init() {
	extraCommands = append(extraCommands, webcamCmd)
}

// webcamCmd classifies frames read from a capture device and draws the label
// onto a preview window.
func webcamCmd(a *app) *cobra.Command {
	var (
		deviceID int
		every    int
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "webcam",
		Short: "Classify frames from a capture device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if every < 1 {
				return fmt.Errorf("--every must be at least 1, got %d", every)
			}

			engine, err := openEngine(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			defer engine.Close()

			webcam, err := gocv.OpenVideoCapture(deviceID)
			if err != nil {
				return fmt.Errorf("open capture device %d: %w", deviceID, err)
			}
			defer webcam.Close()

			var window *gocv.Window
			if !headless {
				window = gocv.NewWindow("classify")
				defer window.Close()
			}

			img := gocv.NewMat()
			defer img.Close()

			green := color.RGBA{0, 255, 0, 0}
			current, label := "", ""
			fps := 0.0
			frames := 0
			last := time.Now()

			a.logger.Info("reading capture device", slog.Int("device", deviceID))
			for n := 0; ; n++ {
				if err := cmd.Context().Err(); err != nil {
					return nil
				}
				if ok := webcam.Read(&img); !ok {
					return fmt.Errorf("cannot read capture device %d", deviceID)
				}
				if img.Empty() {
					continue
				}

				frames++
				if elapsed := time.Since(last).Seconds(); elapsed >= 1.0 {
					fps = float64(frames) / elapsed
					frames = 0
					last = time.Now()
				}

				if n%every == 0 {
					frame, err := img.ToImage()
					if err != nil {
						return fmt.Errorf("convert frame: %w", err)
					}
					result, err := engine.ClassifyImage(cmd.Context(), frame)
					if err != nil {
						a.logger.Warn("frame classification failed", slog.Any("error", err))
						continue
					}
					if result.Label != current {
						current = result.Label
						a.logger.Info("prediction changed",
							slog.String("label", result.Label),
							slog.Float64("confidence", float64(result.Confidence)),
							slog.Float64("fps", fps))
					}
					label = fmt.Sprintf("%s (%.2f)", result.Label, result.Confidence)
				}

				if window != nil {
					gocv.PutText(&img, fmt.Sprintf("%s | %.1f fps", label, fps), image.Pt(10, 30),
						gocv.FontHersheyPlain, 1.6, green, 2)
					window.IMShow(img)
					if window.WaitKey(1) == 27 {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().IntVar(&deviceID, "device", 0, "Capture device id")
	cmd.Flags().IntVar(&every, "every", 5, "Classify every Nth frame")
	cmd.Flags().BoolVar(&headless, "headless", false, "Log predictions without opening a window")

	return cmd
}
