// Package corpus holds the interview corpus loaded from the embeddings file.
// A Corpus is immutable after Load and safe for concurrent readers.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/ranker"
	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
)

// ErrUnavailable matches every LoadError.
var ErrUnavailable = errors.New("corpus unavailable")

type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrUnavailable }

// Entry is one rankable unit: a chunk, or a whole transcript for interviews
// built at interview granularity.
type Entry struct {
	Interview models.InterviewSummary
	Chunk     models.Chunk
	Norm      float64
}

type Snapshot struct {
	Path           string                    `json:"path"`
	LoadedAt       time.Time                 `json:"loadedAt"`
	InterviewCount int                       `json:"interviewCount"`
	ChunkCount     int                       `json:"chunkCount"`
	SkippedChunks  int                       `json:"skippedChunks"`
	Dimension      int                       `json:"dimension"`
	Interviews     []models.InterviewSummary `json:"interviews"`
}

type Corpus struct {
	path       string
	loadedAt   time.Time
	interviews []models.InterviewSummary
	byID       map[string]int
	entries    []Entry
	dim        int
	skipped    int
}

// File is the on-disk shape of the corpus, shared with the builder.
type File struct {
	Interviews []models.Interview `json:"interviews"`
}

// Load reads and validates the corpus file at path.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("malformed corpus: %w", err)}
	}

	c, err := build(f.Interviews)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	c.path = path
	c.loadedAt = time.Now().UTC()

	logger.Info("Corpus loaded",
		zap.String("path", path),
		zap.Int("interviews", len(c.interviews)),
		zap.Int("chunks", len(c.entries)),
		zap.Int("skipped", c.skipped),
		zap.Int("dimension", c.dim),
	)

	return c, nil
}

// New builds a corpus from in-memory interviews.
func New(interviews []models.Interview) (*Corpus, error) {
	c, err := build(interviews)
	if err != nil {
		return nil, err
	}
	c.loadedAt = time.Now().UTC()
	return c, nil
}

func build(interviews []models.Interview) (*Corpus, error) {
	c := &Corpus{byID: make(map[string]int, len(interviews))}

	for i, iv := range interviews {
		if strings.TrimSpace(iv.ID) == "" {
			return nil, fmt.Errorf("interview %d has no id", i)
		}
		if _, dup := c.byID[iv.ID]; dup {
			return nil, fmt.Errorf("duplicate interview id %q", iv.ID)
		}

		summary := models.InterviewSummary{
			ID:           iv.ID,
			Name:         iv.Name,
			ExcerptTitle: iv.ExcerptTitle,
			Tags:         append([]string(nil), iv.Tags...),
		}

		var added int
		var err error
		switch {
		case len(iv.Chunks) > 0:
			for idx, ch := range iv.Chunks {
				ch.ID = fmt.Sprintf("%s#%d", iv.ID, idx)
				ch.Index = idx
				ok, aerr := c.add(summary, ch)
				if aerr != nil {
					err = aerr
					break
				}
				if ok {
					added++
				}
			}
		case len(iv.Embedding) > 0:
			var ok bool
			ok, err = c.add(summary, models.Chunk{
				ID:        iv.ID,
				Text:      iv.Transcript,
				Embedding: iv.Embedding,
			})
			if ok {
				added++
			}
		default:
			logger.Warn("Interview has no embeddings and will not be ranked", zap.String("interview_id", iv.ID))
		}
		if err != nil {
			return nil, err
		}

		summary.ChunkCount = added
		c.byID[iv.ID] = len(c.interviews)
		c.interviews = append(c.interviews, summary)
	}

	return c, nil
}

// add appends one rankable entry. Zero-magnitude or empty vectors are skipped;
// a dimension that disagrees with the first vector seen is an error.
func (c *Corpus) add(iv models.InterviewSummary, ch models.Chunk) (bool, error) {
	ch.InterviewID = iv.ID
	ch.InterviewName = iv.Name

	if strings.TrimSpace(ch.Text) == "" || len(ch.Embedding) == 0 {
		logger.Warn("Skipping chunk without text or embedding", zap.String("chunk_id", ch.ID))
		c.skipped++
		return false, nil
	}

	if c.dim == 0 {
		c.dim = len(ch.Embedding)
	} else if len(ch.Embedding) != c.dim {
		return false, fmt.Errorf("chunk %s has %d dimensions, corpus has %d: %w",
			ch.ID, len(ch.Embedding), c.dim, ranker.ErrDimensionMismatch)
	}

	norm := ranker.Norm(ch.Embedding)
	if norm == 0 {
		logger.Warn("Skipping chunk with zero-magnitude embedding", zap.String("chunk_id", ch.ID))
		c.skipped++
		return false, nil
	}

	c.entries = append(c.entries, Entry{Interview: iv, Chunk: ch, Norm: norm})
	return true, nil
}

// AllChunks returns every rankable entry in corpus order. The slice is
// shared; callers must not modify it.
func (c *Corpus) AllChunks() []Entry {
	return c.entries
}

func (c *Corpus) Dimension() int { return c.dim }

// Search returns interviews whose name, excerpt title or any tag contains
// keyword, case-insensitively. An empty keyword matches every interview.
func (c *Corpus) Search(keyword string) []models.InterviewSummary {
	kw := strings.ToLower(strings.TrimSpace(keyword))

	out := make([]models.InterviewSummary, 0)
	for _, iv := range c.interviews {
		if kw == "" || matches(iv, kw) {
			out = append(out, cloneSummary(iv))
		}
	}
	return out
}

func matches(iv models.InterviewSummary, kw string) bool {
	if strings.Contains(strings.ToLower(iv.Name), kw) ||
		strings.Contains(strings.ToLower(iv.ExcerptTitle), kw) {
		return true
	}
	for _, tag := range iv.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

func (c *Corpus) Interview(id string) (models.InterviewSummary, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.InterviewSummary{}, false
	}
	return cloneSummary(c.interviews[i]), true
}

func (c *Corpus) Metadata() Snapshot {
	interviews := make([]models.InterviewSummary, len(c.interviews))
	for i, iv := range c.interviews {
		interviews[i] = cloneSummary(iv)
	}
	return Snapshot{
		Path:           c.path,
		LoadedAt:       c.loadedAt,
		InterviewCount: len(c.interviews),
		ChunkCount:     len(c.entries),
		SkippedChunks:  c.skipped,
		Dimension:      c.dim,
		Interviews:     interviews,
	}
}

func cloneSummary(iv models.InterviewSummary) models.InterviewSummary {
	iv.Tags = append([]string(nil), iv.Tags...)
	return iv
}
