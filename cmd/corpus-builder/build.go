package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/oral-history/backend/internal/ingestion"
	"github.com/oral-history/backend/internal/llm"
)

var (
	metadataPath string
	outPath      string
	granularity  string
	maxChunkSize int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed interview transcripts and write the corpus file",
	Long: `Build reads the metadata file, embeds each transcript and writes the
corpus atomically. Interviews whose transcript cannot be read and chunks that
fail to embed are skipped and reported.

Examples:
  corpus-builder build --metadata data/metadata.json
  corpus-builder build --granularity interview --out data/whole.json`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&metadataPath, "metadata", "./data/metadata.json", "interview metadata file")
	buildCmd.Flags().StringVar(&outPath, "out", "", "corpus output file (default is corpus.path from config)")
	buildCmd.Flags().StringVar(&granularity, "granularity", string(ingestion.GranularityChunk), "chunk or interview")
	buildCmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", 0, "chunk bound in characters (default is retrieval.maxChunkSize from config)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if outPath == "" {
		outPath = cfg.Corpus.Path
	}
	if maxChunkSize <= 0 {
		maxChunkSize = cfg.Retrieval.MaxChunkSize
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured; set OPENAI_API_KEY")
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		EmbeddingModel:   cfg.LLM.EmbeddingModel,
		EmbeddingTimeout: time.Duration(cfg.LLM.EmbeddingTimeoutSec) * time.Second,
	})

	var bar *progressbar.ProgressBar
	processor, err := ingestion.NewProcessor(llmClient, ingestion.Options{
		Granularity:  ingestion.Granularity(granularity),
		MaxChunkSize: maxChunkSize,
		Progress: func(done, total int, interviewID string) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Println()
					}),
				)
			}
			_ = bar.Set(done)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Building corpus from %s\n", metadataPath)
	start := time.Now()

	stats, err := processor.BuildCorpus(ctx, metadataPath, outPath)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Printf("\nWrote %s in %s\n", outPath, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Interviews: %d (%d skipped)\n", stats.Interviews, stats.SkippedInterviews)
	if ingestion.Granularity(granularity) == ingestion.GranularityChunk {
		fmt.Printf("  Chunks:     %d (%d failed to embed)\n", stats.Chunks, stats.FailedChunks)
	}
	return nil
}
