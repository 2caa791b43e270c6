package matcher

// tokenOverlap is the Jaccard similarity of two token sets.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// modelSimilarity is the normalized edit-distance similarity of two model
// identifiers, in [0, 1].
func modelSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// Score rates how likely a normalized listing and a candidate product name
// the same physical item. When both sides carry a model identifier the score
// blends token overlap with model similarity. Identical model identifiers
// backed by at least half-overlapping tokens floor the score at 0.9: two
// retailers naming the same SKU differ mostly in decoration. The token
// requirement keeps different board-partner cards of the same chip apart
// ("MSI RTX 4070 Ventus" vs "ASUS ROG Strix RTX 4070").
func Score(listing Normalized, candidate Normalized) float64 {
	overlap := tokenOverlap(listing.Tokens, candidate.Tokens)
	if listing.Model == "" || candidate.Model == "" {
		return overlap
	}
	score := 0.6*overlap + 0.4*modelSimilarity(listing.Model, candidate.Model)
	if listing.Model == candidate.Model && overlap >= 0.5 && score < 0.9 {
		score = 0.9
	}
	return score
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
