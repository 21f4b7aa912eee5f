package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"arstate/internal/watch"
)

var watchOutputDir string

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <dir>",
	Short: "Convert files as they are dropped into a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		dir := args[0]
		outputDir := watchOutputDir
		if outputDir == "" {
			outputDir = filepath.Join(dir, cfg.Convert.OutputDir)
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}

		handler := watch.ConvertHandler(newPipeline(), req, outputDir, log)
		w, err := watch.New(dir, outputDir, cfg.Watch.StabilityDelay, handler, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}

func init() {
	addRequestFlags(watchCmd)
	watchCmd.Flags().StringVarP(&watchOutputDir, "output", "o", "", "destination folder (default: <dir>/<convert.output_dir>)")
	rootCmd.AddCommand(watchCmd)
}
