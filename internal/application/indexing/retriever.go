package indexing

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// DefaultTopK is the number of excerpts returned when the caller asks for
// none.
const DefaultTopK = 6

// Retriever finds the chunks of a report closest to a question.
type Retriever struct {
	embed  Embedder
	chunks report.ChunkStore
	topK   int
}

func NewRetriever(embed Embedder, chunks report.ChunkStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embed: embed, chunks: chunks, topK: topK}
}

// Search embeds query and returns up to topK chunks of reportID ordered by
// cosine distance. A reportID of zero searches every report.
func (r *Retriever) Search(ctx context.Context, reportID int64, query string, topK int) ([]report.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeValidation, "query is required")
	}
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.chunks.SearchChunks(ctx, reportID, vec, topK)
}

// FormatExcerpts renders hits as "[Excerpt i]" blocks separated by blank
// lines. Blank chunks are skipped but keep their number.
func FormatExcerpts(hits []report.ScoredChunk) string {
	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		text := strings.TrimSpace(h.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Excerpt %d]\n%s", i+1, text))
	}
	return strings.Join(blocks, "\n\n")
}
