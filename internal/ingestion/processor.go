// Package ingestion builds the interview corpus file offline: it reads
// transcripts, chunks them and embeds each chunk.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/chunker"
	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
	"github.com/oral-history/backend/pkg/utils"
)

type Granularity string

const (
	GranularityChunk     Granularity = "chunk"
	GranularityInterview Granularity = "interview"
)

var whitespace = regexp.MustCompile(`\s+`)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MetadataEntry describes one interview in the builder's input file.
// TranscriptPath is resolved relative to the metadata file. TranscriptPDF is
// the key older metadata files use; it is read when TranscriptPath is empty.
type MetadataEntry struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ExcerptTitle   string   `json:"excerpt_title"`
	Tags           []string `json:"tags"`
	TranscriptPath string   `json:"transcript_path"`
	TranscriptPDF  string   `json:"transcript_pdf"`
}

type metadataFile struct {
	Interviews []MetadataEntry `json:"interviews"`
}

type Options struct {
	Granularity  Granularity
	MaxChunkSize int
	// Progress is called after each interview, processed or skipped.
	Progress func(done, total int, interviewID string)
}

type Stats struct {
	Interviews        int
	SkippedInterviews int
	Chunks            int
	FailedChunks      int
}

type Processor struct {
	embedder Embedder
	opts     Options
}

func NewProcessor(embedder Embedder, opts Options) (*Processor, error) {
	switch opts.Granularity {
	case "":
		opts.Granularity = GranularityChunk
	case GranularityChunk, GranularityInterview:
	default:
		return nil, fmt.Errorf("unknown granularity %q", opts.Granularity)
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = chunker.DefaultMaxChunkSize
	}

	return &Processor{
		embedder: embedder,
		opts:     opts,
	}, nil
}

func LoadMetadata(path string) ([]MetadataEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var f metadataFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return f.Interviews, nil
}

// BuildCorpus processes every interview listed in metadataPath and writes the
// corpus to outPath. Interviews whose transcript cannot be read are skipped;
// chunks that fail to embed are dropped. Only a cancelled context, bad
// metadata or a failed write abort the build.
func (p *Processor) BuildCorpus(ctx context.Context, metadataPath, outPath string) (Stats, error) {
	var stats Stats

	entries, err := LoadMetadata(metadataPath)
	if err != nil {
		return stats, err
	}
	baseDir := filepath.Dir(metadataPath)

	interviews := make([]models.Interview, 0, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		logger.Info("Processing interview", zap.String("interview_id", entry.ID))

		interview, failed, err := p.ProcessInterview(ctx, baseDir, entry)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logger.Error("Skipping interview",
				zap.String("interview_id", entry.ID),
				zap.Error(err),
			)
			stats.SkippedInterviews++
		} else {
			interviews = append(interviews, interview)
			stats.Interviews++
			stats.Chunks += len(interview.Chunks)
			stats.FailedChunks += failed
		}

		if p.opts.Progress != nil {
			p.opts.Progress(i+1, len(entries), entry.ID)
		}
	}

	data, err := json.MarshalIndent(corpus.File{Interviews: interviews}, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("marshal corpus: %w", err)
	}
	if err := utils.WriteFileAtomic(outPath, data, 0o644); err != nil {
		return stats, fmt.Errorf("write corpus %s: %w", outPath, err)
	}

	logger.Info("Corpus written",
		zap.String("path", outPath),
		zap.Int("interviews", stats.Interviews),
		zap.Int("skipped_interviews", stats.SkippedInterviews),
		zap.Int("chunks", stats.Chunks),
		zap.Int("failed_chunks", stats.FailedChunks),
	)

	return stats, nil
}

// ProcessInterview reads, chunks and embeds one transcript. It returns the
// number of chunks that failed to embed alongside the interview.
func (p *Processor) ProcessInterview(ctx context.Context, baseDir string, entry MetadataEntry) (models.Interview, int, error) {
	if entry.ID == "" {
		return models.Interview{}, 0, errors.New("interview has no id")
	}

	path := entry.TranscriptPath
	if path == "" {
		path = entry.TranscriptPDF
	}
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	text, err := ReadTranscript(path)
	if err != nil {
		return models.Interview{}, 0, err
	}

	interview := models.Interview{
		ID:           entry.ID,
		Name:         entry.Name,
		ExcerptTitle: entry.ExcerptTitle,
		Tags:         entry.Tags,
	}

	if p.opts.Granularity == GranularityInterview {
		embedding, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return models.Interview{}, 0, fmt.Errorf("embed transcript: %w", err)
		}
		interview.Transcript = text
		interview.Embedding = embedding
		return interview, 0, nil
	}

	failed := 0
	for i, chunk := range chunker.Split(text, p.opts.MaxChunkSize) {
		embedding, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return models.Interview{}, failed, ctx.Err()
			}
			logger.Warn("Failed to embed chunk",
				zap.String("interview_id", entry.ID),
				zap.Int("chunk_index", i),
				zap.Error(err),
			)
			failed++
			continue
		}
		interview.Chunks = append(interview.Chunks, models.Chunk{
			Text:      chunk,
			Embedding: embedding,
		})
	}

	if len(interview.Chunks) == 0 {
		logger.Warn("Interview has no embedded chunks", zap.String("interview_id", entry.ID))
	}

	return interview, failed, nil
}

// ReadTranscript returns the text of a transcript file. HTML transcripts are
// reduced to their body text and PDFs to their page text.
func ReadTranscript(path string) (string, error) {
	if path == "" {
		return "", errors.New("no transcript path")
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		var err error
		text, err = readPDF(path)
		if err != nil {
			return "", fmt.Errorf("parse transcript %s: %w", path, err)
		}
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		text, err = cleanHTML(string(data))
		if err != nil {
			return "", fmt.Errorf("parse transcript %s: %w", path, err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}

	if text == "" {
		return "", fmt.Errorf("transcript %s is empty", path)
	}
	return text, nil
}

func cleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	// Block boundaries would otherwise glue sentences together.
	doc.Find("p, br, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Find("body").Text()
	text = whitespace.ReplaceAllString(text, " ")

	return strings.TrimSpace(text), nil
}
