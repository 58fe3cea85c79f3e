package scoring

import (
	"math"
	"regexp"
	"strings"

	"reclaim/internal/domain"
)

var reTok = regexp.MustCompile(`[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*`)

// Common words excluded so "the black wallet" and "the red phone" do not
// look related on articles alone.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true, "by": true,
	"and": true, "or": true, "as": true, "at": true, "from": true,
	"is": true, "was": true, "it": true, "my": true, "i": true,
	"near": true, "around": true, "lost": true, "found": true,
}

// TextScore compares title+description of the two items via TF-IDF weighted
// cosine similarity over a vocabulary built from the pair itself. Empty text
// on either side scores 0.
func TextScore(a, b *domain.Item) float64 {
	ta := tokenize(a.Title + " " + a.Description)
	tb := tokenize(b.Title + " " + b.Description)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	tfA := termFrequencies(ta)
	tfB := termFrequencies(tb)

	// Smoothed IDF over the two-document corpus: shared terms keep a nonzero
	// weight (1.0) instead of vanishing under the classic log(N/df).
	idf := make(map[string]float64, len(tfA)+len(tfB))
	for term := range tfA {
		df := 1.0
		if _, ok := tfB[term]; ok {
			df = 2.0
		}
		idf[term] = 1 + math.Log(2.0/df)
	}
	for term := range tfB {
		if _, ok := idf[term]; !ok {
			idf[term] = 1 + math.Log(2.0/1.0)
		}
	}

	var dot, normA, normB float64
	for term, fa := range tfA {
		wa := fa * idf[term]
		normA += wa * wa
		if fb, ok := tfB[term]; ok {
			dot += wa * fb * idf[term]
		}
	}
	for term, fb := range tfB {
		wb := fb * idf[term]
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenize(raw string) []string {
	parts := reTok.FindAllString(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.ToLower(p)
		if stopwords[t] || len(t) <= 1 {
			continue
		}
		out = append(out, t)
	}
	return out
}

func termFrequencies(tokens []string) map[string]float64 {
	counts := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for t := range counts {
		counts[t] /= float64(len(tokens))
	}
	return counts
}
