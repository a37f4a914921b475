package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/evaluation"
	"github.com/oral-history/backend/internal/llm"
)

var (
	datasetPath string
	corpusPath  string
	evalTopK    int
	verbose     bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure retrieval hit rate against a labelled query set",
	Long: `Eval embeds each query in the dataset, ranks the corpus and reports how
often an expected interview appears in the top K.

Dataset format:
  {"items":[{"query":"...","expectedInterviews":["id1","id2"]}]}`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&datasetPath, "dataset", "./data/eval.json", "labelled query set")
	evalCmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus file (default is corpus.path from config)")
	evalCmd.Flags().IntVarP(&evalTopK, "top-k", "k", 0, "results per query (default is retrieval.topK from config)")
	evalCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print per-query results")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	if corpusPath == "" {
		corpusPath = cfg.Corpus.Path
	}
	if evalTopK <= 0 {
		evalTopK = cfg.Retrieval.TopK
	}

	c, err := corpus.Load(corpusPath)
	if err != nil {
		return err
	}

	dataset, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		return err
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		EmbeddingModel:   cfg.LLM.EmbeddingModel,
		EmbeddingTimeout: time.Duration(cfg.LLM.EmbeddingTimeoutSec) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := evaluation.NewEvaluator(c, llmClient, evalTopK).RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if verbose {
		for _, r := range report.Results {
			mark := "miss"
			if r.Rank > 0 {
				mark = fmt.Sprintf("hit@%d", r.Rank)
			}
			fmt.Printf("%-7s %.3f  %q -> %v\n", mark, r.TopSimilarity, r.Query, r.Retrieved)
		}
	}

	fmt.Print(evaluation.GenerateReport(report))
	return nil
}
