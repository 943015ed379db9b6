package keyword

import (
	"sort"
	"strings"
)

// Suggester proposes corrections for query terms that do not occur in the index.
type Suggester struct {
	dict        TermDictionary
	maxDistance int
}

// NewSuggester returns a suggester over dict. Terms further than maxDistance edits
// (default 2) are never proposed.
func NewSuggester(dict TermDictionary, maxDistance int) *Suggester {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	return &Suggester{dict: dict, maxDistance: maxDistance}
}

// Correct returns query with every unknown term replaced by its best suggestion, and
// whether anything changed. Candidates rank by frequency / (distance + 1), then by term.
func (s *Suggester) Correct(query string) (string, bool, error) {
	terms, err := s.dict.Terms()
	if err != nil {
		return query, false, err
	}
	words := tokenizeQuery(query)
	changed := false
	for i, w := range words {
		if _, ok := terms[w]; ok {
			continue
		}
		if best, ok := s.best(w, terms); ok {
			words[i] = best
			changed = true
		}
	}
	if !changed {
		return query, false, nil
	}
	return strings.Join(words, " "), true, nil
}

func (s *Suggester) best(word string, terms map[string]int) (string, bool) {
	type candidate struct {
		term  string
		score float64
	}
	var candidates []candidate
	wl := len([]rune(word))
	for term, freq := range terms {
		diff := len([]rune(term)) - wl
		if diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := LevenshteinDistance(word, term)
		if d > s.maxDistance {
			continue
		}
		candidates = append(candidates, candidate{term: term, score: float64(freq) / float64(d+1)})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].term < candidates[j].term
	})
	return candidates[0].term, true
}

// LevenshteinDistance returns the number of single-rune insertions, deletions or
// substitutions needed to turn a into b.
func LevenshteinDistance(a, b string) int {
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
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
