package index

import (
	"math"
	"regexp"
	"strings"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch ranks chunks by token overlap with the query using the
// Ochiai coefficient |A∩B| / sqrt(|A||B|).
func lexicalSearch(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	results := make([]domain.SearchResult, len(chunks))
	for i, ch := range chunks {
		results[i] = domain.SearchResult{Chunk: ch, Score: ochiai(qset, ch.Text)}
	}
	vectorstore.SortResults(results)
	return results[:vectorstore.NormalizeTopK(topK, len(results))]
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func ochiai(qset map[string]struct{}, text string) float64 {
	tset := tokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
