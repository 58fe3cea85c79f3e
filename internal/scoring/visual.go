package scoring

import "reclaim/internal/domain"

// VisualScore computes Jaccard similarity over the high-confidence tag sets
// of the two items. An empty set on either side means "no signal" and scores
// 0 rather than a neutral default, so missing enrichment never inflates
// confidence. Symmetric in its arguments.
func VisualScore(a, b *domain.Item, cutoff float64) float64 {
	sa := highConfidenceTags(a.VisualTags, cutoff)
	sb := highConfidenceTags(b.VisualTags, cutoff)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for label := range sa {
		if sb[label] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func highConfidenceTags(tags []domain.VisualTag, cutoff float64) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t.Confidence >= cutoff {
			out[t.Label] = true
		}
	}
	return out
}
