package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"arstate/internal/estimate"
	"arstate/internal/history"
	"arstate/internal/media"
	"arstate/internal/processor"
	"arstate/internal/tui"
)

var (
	compressQuality     int
	compressInteractive bool
	compressOutputDir   string
)

var compressCmd = &cobra.Command{
	Use:   "compress [flags] <file.pdf>",
	Short: "Shrink a PDF by re-encoding its pages as JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		sources, _, err := processor.Load(ctx, args, processor.LoadOptions{})
		if err != nil {
			return err
		}
		if len(sources) != 1 || !sources[0].Kind.Paginated() {
			return fmt.Errorf("%s is not a PDF document", args[0])
		}
		src := sources[0]

		quality := cfg.Compress.Quality
		if cmd.Flags().Changed("quality") {
			quality = compressQuality
		}
		compressor := newCompressor()

		if compressInteractive {
			loop := estimate.New(ctx, func(ctx context.Context, q int) (media.Snapshot, error) {
				return compressor.Estimate(ctx, src, q)
			}, cfg.Estimate.Debounce, log)
			defer loop.Close()

			final, err := tea.NewProgram(tui.NewPicker("arstate compress: "+src.Name, loop, quality, int64(len(src.Data)))).Run()
			if err != nil {
				return err
			}
			chosen, ok := final.(tui.Picker).Result()
			if !ok {
				fmt.Fprintln(os.Stdout, "Cancelled.")
				return nil
			}
			quality = chosen
		}

		asm, err := compressor.Compress(ctx, src, quality)
		if err != nil {
			return fmt.Errorf("%s", media.UserMessage(err))
		}

		outputDir := compressOutputDir
		if outputDir == "" {
			outputDir = filepath.Dir(args[0])
		}
		dest, err := processor.WriteAssembly(outputDir, asm)
		if err != nil {
			return err
		}
		if store := openHistory(); store != nil {
			_, herr := store.Append(ctx, cfg.History.User, history.Item{
				App:    "compress",
				Name:   asm.Name,
				Detail: fmt.Sprintf("quality %d, %d -> %d bytes", quality, len(src.Data), len(asm.Data)),
				Bytes:  int64(len(asm.Data)),
			})
			if herr != nil {
				log.Warn().Err(herr).Msg("record history")
			}
			_ = store.Close()
		}

		before, after := int64(len(src.Data)), int64(len(asm.Data))
		reduction := 0.0
		if before > 0 {
			reduction = 100 - float64(after)*100/float64(before)
		}
		rows := []tui.SummaryRow{
			{Label: "Quality", Value: fmt.Sprintf("%d", quality)},
			{Label: "Original size", Value: tui.FormatBytes(before)},
			{Label: "Compressed size", Value: tui.FormatBytes(after)},
			{Label: "Reduction", Value: fmt.Sprintf("%.1f%%", reduction)},
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
		fmt.Fprintf(os.Stdout, "Output written to: %s\n", dest)
		return nil
	},
}

func init() {
	compressCmd.Flags().IntVarP(&compressQuality, "quality", "q", 70, "JPEG quality for page images (1-100)")
	compressCmd.Flags().BoolVarP(&compressInteractive, "interactive", "i", false, "pick the quality with a live size estimate")
	compressCmd.Flags().StringVarP(&compressOutputDir, "output", "o", "", "destination folder (default: next to the input)")

	rootCmd.AddCommand(compressCmd)
}
