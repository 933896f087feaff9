package chunker

import (
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
)

// RecursiveChunker splits text on paragraph, line, word and finally rune
// boundaries until every window fits in chunkSize runes, carrying
// chunkOverlap runes of context between neighbours.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &RecursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

func (c *RecursiveChunker) Chunk(documents []domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	idx := 0
	for _, d := range documents {
		parts, err := c.splitter.SplitText(d.Content)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeChunkerFailure, "splitting document", errs.FieldPath(d.Path))
		}
		for _, p := range parts {
			text := strings.TrimSpace(p)
			if text == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				DocumentID: d.ID,
				ChunkID:    d.ID + ":" + strconv.Itoa(idx),
				Page:       d.Page,
				Text:       text,
				Index:      idx,
			})
			idx++
		}
	}
	return chunks, nil
}
