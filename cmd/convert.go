package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"arstate/internal/history"
	"arstate/internal/media"
	"arstate/internal/processor"
	"arstate/internal/tui"
)

var (
	convertTarget    string
	convertQuality   int
	convertScale     float64
	convertOutputDir string
	convertNoTUI     bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <path>...",
	Short: "Convert images and PDFs to PNG, JPG or ICO",
	Long: "Convert JPEG, PNG, HEIC and PDF files. A single image becomes a single file; " +
		"several files, or any PDF, become a zip archive with one entry per image or page.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		outputDir := convertOutputDir
		if outputDir == "" {
			outputDir = cfg.Convert.OutputDir
		}

		ctx := context.Background()
		sources, ignored, err := processor.Load(ctx, args, processor.LoadOptions{SkipDir: outputDir})
		if err != nil {
			return err
		}
		if notice := media.IgnoredNotice(ignored); notice != "" {
			fmt.Fprintln(os.Stderr, noticeStyle.Render(notice))
		}
		if len(sources) == 0 {
			return fmt.Errorf("no supported files found")
		}
		if target := media.ResolveOutput(req.Target, sources); target != req.Target {
			fmt.Fprintf(os.Stderr, "%s\n", noticeStyle.Render(fmt.Sprintf("%s is not available for PDFs, using %s", req.Target, target)))
			req.Target = target
		}

		pipeline := newPipeline()
		var report processor.Report
		if convertNoTUI {
			report, err = pipeline.Convert(ctx, sources, req, nil)
		} else {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			updates := make(chan processor.ProgressUpdate, 64)
			program := tea.NewProgram(tui.NewModel("arstate convert", updates))

			uiDone := make(chan struct{})
			go func() {
				final, _ := program.Run()
				if m, ok := final.(tui.Model); ok && m.Interrupted() {
					cancel()
				}
				close(uiDone)
				// The UI may stop reading before Convert stops sending.
				for range updates {
				}
			}()

			report, err = pipeline.Convert(runCtx, sources, req, updates)
			close(updates)
			<-uiDone
		}
		if err != nil {
			return fmt.Errorf("%s", media.UserMessage(err))
		}

		dest, err := processor.WriteAssembly(outputDir, report.Assembly)
		if err != nil {
			return err
		}
		if store := openHistory(); store != nil {
			_, herr := store.Append(ctx, cfg.History.User, history.Item{
				App:    "convert",
				Name:   report.Assembly.Name,
				Detail: fmt.Sprintf("%d file(s) to %s", report.Summary.Processed, req.Target),
				Bytes:  int64(len(report.Assembly.Data)),
			})
			if herr != nil {
				log.Warn().Err(herr).Msg("record history")
			}
			_ = store.Close()
		}

		rows := []tui.SummaryRow{
			{Label: "Files converted", Value: fmt.Sprintf("%d", report.Summary.Processed)},
			{Label: "Files failed", Value: fmt.Sprintf("%d", report.Summary.Errors)},
			{Label: "Input size", Value: tui.FormatBytes(report.Summary.InputBytes)},
			{Label: "Output size", Value: tui.FormatBytes(int64(len(report.Assembly.Data)))},
		}
		fmt.Fprintln(os.Stdout, tui.RenderResults(report.Results))
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))

		outPath := dest
		if abs, absErr := filepath.Abs(dest); absErr == nil {
			outPath = abs
		}
		fmt.Fprintf(os.Stdout, "Output written to: %s\n", outPath)
		return nil
	},
}

// requestFromFlags merges command flags over the configured defaults.
func requestFromFlags(cmd *cobra.Command) (media.Request, error) {
	target := cfg.Convert.Target
	if cmd.Flags().Changed("to") {
		target = convertTarget
	}
	kind, err := media.ParseOutputKind(target)
	if err != nil {
		return media.Request{}, err
	}

	req := media.Request{Target: kind, Quality: cfg.Convert.Quality, Scale: cfg.Convert.Scale}
	if cmd.Flags().Changed("quality") {
		req.Quality = convertQuality
	}
	if cmd.Flags().Changed("scale") {
		req.Scale = convertScale
	}
	return req, req.Validate()
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&convertTarget, "to", "t", "png", "output format: png, jpg or ico")
	cmd.Flags().IntVarP(&convertQuality, "quality", "q", 90, "quality 1-100, or 101 for lossless")
	cmd.Flags().Float64VarP(&convertScale, "scale", "s", 100, "resolution in percent of the original (0-100]")
}

func init() {
	addRequestFlags(convertCmd)
	convertCmd.Flags().StringVarP(&convertOutputDir, "output", "o", "", "destination folder (default from config)")
	convertCmd.Flags().BoolVar(&convertNoTUI, "no-tui", false, "disable the progress display")

	rootCmd.AddCommand(convertCmd)
}
