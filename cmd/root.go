package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arstate/internal/assemble"
	"arstate/internal/compress"
	"arstate/internal/config"
	"arstate/internal/history"
	"arstate/internal/logging"
	"arstate/internal/processor"
	"arstate/internal/rasterize"
	"arstate/internal/transcode"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	userID     string

	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "arstate",
	Short:         "arstate - convert and compress images and PDFs",
	Long:          "arstate converts JPEG, PNG, HEIC and PDF files to PNG, JPG or ICO, compresses PDFs, and previews output sizes before you commit.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if cmd.Flags().Changed("user") {
			loaded.History.User = userID
		}
		cfg = loaded
		log = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (console, json)")
	flags.StringVar(&userID, "user", "", "history owner (defaults to the configured user)")
}

func newTranscoder() *transcode.Transcoder {
	return transcode.New(nil, log)
}

func newPipeline() *processor.Pipeline {
	tr := newTranscoder()
	return processor.New(
		tr,
		rasterize.New(nil, tr, cfg.Convert.BaseScale, log),
		assemble.New(nil, log),
		log,
	)
}

func newCompressor() *compress.Compressor {
	tr := newTranscoder()
	return compress.New(rasterize.New(nil, tr, cfg.Compress.BaseScale, log), tr, cfg.Compress.BaseScale, log)
}

// openHistory returns nil when the history database cannot be opened.
func openHistory() *history.Store {
	store, err := history.Open(cfg.History.Path, log)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.History.Path).Msg("history disabled")
		return nil
	}
	return store
}
