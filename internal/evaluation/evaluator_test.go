package evaluation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/storage/models"
)

type mapEmbedder map[string][]float64

func (m mapEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	v, ok := m[text]
	if !ok {
		return nil, errors.New("no vector")
	}
	return v, nil
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New([]models.Interview{
		{ID: "a", Name: "Ana", Chunks: []models.Chunk{{Text: "march", Embedding: []float64{1, 0, 0}}}},
		{ID: "b", Name: "Ben", Chunks: []models.Chunk{{Text: "kitchen", Embedding: []float64{0, 1, 0}}}},
		{ID: "c", Name: "Cy", Chunks: []models.Chunk{{Text: "court", Embedding: []float64{0, 0, 1}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRunDatasetEvaluation(t *testing.T) {
	emb := mapEmbedder{
		"protest": {1, 0.2, 0.1},
		"food":    {0.3, 0.2, 1},
		"nothing": {0, 0.1, 1},
	}
	e := NewEvaluator(testCorpus(t), emb, 2)

	report, err := e.RunDatasetEvaluation(context.Background(), &Dataset{Items: []DatasetItem{
		{Query: "protest", ExpectedInterviews: []string{"a"}},
		{Query: "food", ExpectedInterviews: []string{"a"}},
		{Query: "nothing", ExpectedInterviews: []string{"b"}},
		{Query: "unembeddable", ExpectedInterviews: []string{"a"}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if report.TotalQueries != 4 || report.FailedQueries != 1 {
		t.Fatalf("unexpected counts %+v", report)
	}
	// protest: a at rank 1; food: c then a, rank 2; nothing: c then b, rank 2.
	if report.Hits != 3 {
		t.Fatalf("Hits = %d, want 3", report.Hits)
	}
	wantMRR := (1 + 0.5 + 0.5) / 3
	if math.Abs(report.MRR-wantMRR) > 1e-9 {
		t.Errorf("MRR = %v, want %v", report.MRR, wantMRR)
	}
	if report.HitRate != 1 {
		t.Errorf("HitRate = %v, want 1", report.HitRate)
	}
	if got := report.Results[1].Retrieved; len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("unexpected retrieval order %v", got)
	}
}

func TestEvaluateQueryMiss(t *testing.T) {
	e := NewEvaluator(testCorpus(t), mapEmbedder{"q": {0, 0, 1}}, 1)

	result, err := e.EvaluateQuery(context.Background(), DatasetItem{Query: "q", ExpectedInterviews: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Rank != 0 || result.TopSimilarity != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEvaluateQueryZeroVector(t *testing.T) {
	e := NewEvaluator(testCorpus(t), mapEmbedder{"q": {0, 0, 0}}, 1)
	if _, err := e.EvaluateQuery(context.Background(), DatasetItem{Query: "q"}); err == nil {
		t.Fatal("expected error for zero query vector")
	}
}

func TestLoadDatasetAndReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.json")
	data := `{"items":[{"query":"who marched?","expectedInterviews":["a","b"],"category":"events"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	dataset, err := LoadDataset(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(dataset.Items) != 1 || len(dataset.Items[0].ExpectedInterviews) != 2 {
		t.Fatalf("unexpected dataset %+v", dataset)
	}

	text := GenerateReport(&Report{TopK: 3, TotalQueries: 1, Hits: 1, HitRate: 1, MRR: 1})
	if !strings.Contains(text, "Hit rate:           100.0%") {
		t.Errorf("report missing hit rate:\n%s", text)
	}
}
