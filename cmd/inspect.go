package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"arstate/internal/media"
	"arstate/internal/processor"
	"arstate/internal/tui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>...",
	Short: "Show how files will be classified without converting them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, ignored, err := processor.Load(context.Background(), args, processor.LoadOptions{})
		if err != nil {
			return err
		}

		for i, src := range sources {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			fmt.Fprintf(os.Stdout, "%s\n", inspectFileStyle.Render(src.Name))
			fmt.Fprintf(os.Stdout, "  %s %s\n", inspectLabelStyle.Render("kind:"), inspectValueStyle.Render(src.Kind.String()))
			fmt.Fprintf(os.Stdout, "  %s %s\n", inspectLabelStyle.Render("type:"), inspectValueStyle.Render(src.MIME))
			fmt.Fprintf(os.Stdout, "  %s %s\n", inspectLabelStyle.Render("size:"), inspectValueStyle.Render(tui.FormatBytes(int64(len(src.Data)))))
			if src.ContentMismatch() {
				fmt.Fprintf(os.Stdout, "  %s\n", noticeStyle.Render("content looks like "+src.Content.String()))
			}
			if src.Kind.Paginated() {
				fmt.Fprintf(os.Stdout, "  %s %s\n", inspectBulletStyle.Render("-"), inspectDimStyle.Render("converted page by page"))
			}
		}

		if len(sources) > 0 {
			var outs []string
			for _, k := range media.AvailableOutputs(sources) {
				outs = append(outs, k.Ext())
			}
			fmt.Fprintf(os.Stdout, "\n%s %s\n", inspectLabelStyle.Render("Available outputs:"), inspectValueStyle.Render(strings.Join(outs, ", ")))
		}
		if notice := media.IgnoredNotice(ignored); notice != "" {
			fmt.Fprintln(os.Stdout, noticeStyle.Render(notice))
		}
		return nil
	},
}

var (
	inspectFileStyle   = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	inspectLabelStyle  = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
	inspectValueStyle  = lipgloss.NewStyle().Foreground(tui.ColorInk)
	inspectDimStyle    = lipgloss.NewStyle().Foreground(tui.ColorDim)
	inspectBulletStyle = lipgloss.NewStyle().Foreground(tui.ColorDim)
	noticeStyle        = lipgloss.NewStyle().Foreground(tui.ColorWarn)
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}
