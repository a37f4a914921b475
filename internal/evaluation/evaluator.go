// Package evaluation measures retrieval quality against a labelled query set:
// for each query, does the ranker surface the interviews a reader would cite?
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/ranker"
	"github.com/oral-history/backend/pkg/logger"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Query string `json:"query"`
	// ExpectedInterviews lists interview ids that count as a hit.
	ExpectedInterviews []string `json:"expectedInterviews"`
	Category           string   `json:"category,omitempty"`
}

type ItemResult struct {
	Query string
	// Rank is the 1-based position of the first expected interview, 0 on a miss.
	Rank          int
	TopSimilarity float64
	Retrieved     []string
}

type Report struct {
	TopK             int
	TotalQueries     int
	FailedQueries    int
	Hits             int
	HitRate          float64
	MRR              float64
	AvgTopSimilarity float64
	Results          []ItemResult
}

type Evaluator struct {
	corpus   *corpus.Corpus
	embedder Embedder
	topK     int
}

func NewEvaluator(c *corpus.Corpus, embedder Embedder, topK int) *Evaluator {
	if topK <= 0 {
		topK = ranker.DefaultTopK
	}
	return &Evaluator{
		corpus:   c,
		embedder: embedder,
		topK:     topK,
	}
}

func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

// EvaluateQuery ranks the corpus for one query and reports where the first
// expected interview landed.
func (e *Evaluator) EvaluateQuery(ctx context.Context, item DatasetItem) (*ItemResult, error) {
	vec, err := e.embedder.Embed(ctx, item.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	entries := e.corpus.AllChunks()
	cands := make([]ranker.Candidate[corpus.Entry], len(entries))
	for i, en := range entries {
		cands[i] = ranker.Candidate[corpus.Entry]{Item: en, Vector: en.Chunk.Embedding, Norm: en.Norm}
	}

	ranked, err := ranker.Rank(vec, cands, e.topK)
	if err != nil {
		return nil, err
	}

	result := &ItemResult{Query: item.Query}
	for i, r := range ranked {
		id := r.Item.Interview.ID
		result.Retrieved = append(result.Retrieved, id)
		if result.Rank == 0 && slices.Contains(item.ExpectedInterviews, id) {
			result.Rank = i + 1
		}
	}
	if len(ranked) > 0 {
		result.TopSimilarity = ranked[0].Score
	}

	return result, nil
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running retrieval evaluation",
		zap.Int("items", len(dataset.Items)),
		zap.Int("top_k", e.topK),
	)

	report := &Report{
		TopK:         e.topK,
		TotalQueries: len(dataset.Items),
	}

	var reciprocalRanks, totalTopSim float64
	evaluated := 0

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.EvaluateQuery(ctx, item)
		if err != nil {
			logger.Error("Failed to evaluate query", zap.Int("index", i), zap.Error(err))
			report.FailedQueries++
			continue
		}

		evaluated++
		if result.Rank > 0 {
			report.Hits++
			reciprocalRanks += 1 / float64(result.Rank)
		}
		totalTopSim += result.TopSimilarity
		report.Results = append(report.Results, *result)
	}

	if evaluated > 0 {
		report.HitRate = float64(report.Hits) / float64(evaluated)
		report.MRR = reciprocalRanks / float64(evaluated)
		report.AvgTopSimilarity = totalTopSim / float64(evaluated)
	}

	logger.Info("Retrieval evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("failed", report.FailedQueries),
		zap.Int("hits", report.Hits),
		zap.Float64("mrr", report.MRR),
	)

	return report, nil
}

func GenerateReport(report *Report) string {
	return fmt.Sprintf(`
Retrieval Evaluation
====================

Queries: %d (%d failed)
Top K:   %d

Hit rate:           %.1f%% (%d hits)
Mean recip. rank:   %.3f
Avg top similarity: %.3f
`,
		report.TotalQueries, report.FailedQueries,
		report.TopK,
		report.HitRate*100, report.Hits,
		report.MRR,
		report.AvgTopSimilarity,
	)
}
