package ai

// Token accounting is heuristic. ASCII text averages roughly four characters
// per token, while CJK runes count as one token each. The estimate only has to
// be stable and conservative enough to keep requests under the model limit.

// EstimateTokens returns an approximate token count for a string.
func EstimateTokens(s string) int {
	ascii := 0
	wide := 0
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			wide++
		}
	}
	return (ascii+3)/4 + wide
}

// LimitTokens truncates s so its estimated token count does not exceed max.
func LimitTokens(s string, max int) string {
	if max <= 0 || EstimateTokens(s) <= max {
		return s
	}
	runes := []rune(s)
	// Binary search the longest prefix fitting the budget.
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if EstimateTokens(string(runes[:mid])) <= max {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

// SplitTokens splits s into consecutive chunks, each within the token budget.
func SplitTokens(s string, max int) []string {
	if s == "" {
		return nil
	}
	if max <= 0 || EstimateTokens(s) <= max {
		return []string{s}
	}
	var chunks []string
	rest := s
	for rest != "" {
		chunk := LimitTokens(rest, max)
		if chunk == "" {
			// A single rune over budget; emit it rather than looping forever.
			runes := []rune(rest)
			chunk = string(runes[:1])
		}
		chunks = append(chunks, chunk)
		rest = rest[len(chunk):]
	}
	return chunks
}
