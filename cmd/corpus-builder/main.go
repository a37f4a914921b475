package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oral-history/backend/pkg/config"
	appLogger "github.com/oral-history/backend/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "corpus-builder",
	Short: "Build the interview embeddings corpus",
	Long: `corpus-builder reads interview metadata and transcripts, splits each
transcript into sentence-bounded chunks, embeds every chunk and writes the
corpus file the API server loads at startup.

Example usage:
  corpus-builder build --metadata data/metadata.json --out data/metadata_with_embeddings.json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()

		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Logs go to stderr so they do not fight the progress bar on stdout.
		if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		appLogger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
