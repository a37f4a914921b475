package models

import "time"

// Interview is one oral-history record in the corpus. It carries either
// Chunks (canonical) or a whole-transcript Embedding.
type Interview struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ExcerptTitle string    `json:"excerpt_title"`
	Tags         []string  `json:"tags"`
	Transcript   string    `json:"transcript,omitempty"`
	Embedding    []float64 `json:"embedding,omitempty"`
	Chunks       []Chunk   `json:"chunks,omitempty"`
}

// Chunk is a sentence-bounded span of a transcript with its embedding.
// InterviewID and InterviewName are a display back-reference only.
type Chunk struct {
	ID            string    `json:"-"`
	InterviewID   string    `json:"-"`
	InterviewName string    `json:"-"`
	Index         int       `json:"-"`
	Text          string    `json:"text"`
	Embedding     []float64 `json:"embedding"`
}

// InterviewSummary is an Interview without transcript or vectors.
type InterviewSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ExcerptTitle string   `json:"excerpt_title"`
	Tags         []string `json:"tags"`
	ChunkCount   int      `json:"chunkCount"`
}

// CitedSource is the provenance of one piece of evidence used for an answer.
type CitedSource struct {
	ID         string   `json:"id"`
	ChunkID    string   `json:"chunkId"`
	Name       string   `json:"name"`
	Tags       []string `json:"tags"`
	Similarity float64  `json:"similarity"`
}

type Session struct {
	SessionID     string    `json:"sessionId"`
	StartTime     time.Time `json:"startTime"`
	LastActive    time.Time `json:"lastActive"`
	Conversations []Turn    `json:"conversations"`
}

// Turn is one question/answer exchange. Sources lists the chunk ids that
// built the context for BotResponse.
type Turn struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"userMessage"`
	BotResponse string    `json:"botResponse"`
	Sources     []string  `json:"sources"`
}

// Clone returns a deep copy so callers cannot mutate log state.
func (s Session) Clone() Session {
	out := s
	out.Conversations = make([]Turn, len(s.Conversations))
	for i, t := range s.Conversations {
		t.Sources = append([]string(nil), t.Sources...)
		out.Conversations[i] = t
	}
	return out
}
