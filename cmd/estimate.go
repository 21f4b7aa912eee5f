package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arstate/internal/media"
	"arstate/internal/processor"
	"arstate/internal/tui"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [flags] <path>...",
	Short: "Predict the converted size without writing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		sources, ignored, err := processor.Load(ctx, args, processor.LoadOptions{})
		if err != nil {
			return err
		}
		if notice := media.IgnoredNotice(ignored); notice != "" {
			fmt.Fprintln(os.Stderr, noticeStyle.Render(notice))
		}
		if len(sources) == 0 {
			return fmt.Errorf("no supported files found")
		}

		var input int64
		for _, src := range sources {
			input += int64(len(src.Data))
		}

		rows := []tui.SummaryRow{{Label: "Input size", Value: tui.FormatBytes(input)}}
		snap, err := newPipeline().Estimate(ctx, sources, req)
		if err != nil {
			log.Debug().Err(err).Msg("estimate unavailable")
			rows = append(rows, tui.SummaryRow{Label: "Estimated size", Value: "unavailable"})
		} else {
			rows = append(rows, tui.SummaryRow{Label: "Estimated size", Value: tui.FormatBytes(snap.Bytes)})
			if snap.HasDimensions {
				rows = append(rows, tui.SummaryRow{Label: "Dimensions", Value: fmt.Sprintf("%d x %d", snap.Width, snap.Height)})
			}
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
		return nil
	},
}

func init() {
	addRequestFlags(estimateCmd)
	rootCmd.AddCommand(estimateCmd)
}
