// Package similarity scores how likely a new article describes the same event
// as an existing story.
package similarity

import (
	"strings"

	"NewsDesk/internal/fingerprint"
)

const (
	DefaultThreshold         = 0.30
	DefaultMinSharedEntities = 2
)

// Weights of the individual signals. They need not sum to one; the score is
// divided by the total weight of the signals that apply to a pair.
type Weights struct {
	Keyword float64 `yaml:"keyword"`
	Entity  float64 `yaml:"entity"`
	Title   float64 `yaml:"title"`
	Jaccard float64 `yaml:"jaccard"`
}

// DefaultWeights favours distinctive keywords, then named entities.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.50, Entity: 0.30, Title: 0.15, Jaccard: 0.05}
}

// Valid reports whether every weight is non-negative and at least one is set.
func (w Weights) Valid() bool {
	if w.Keyword < 0 || w.Entity < 0 || w.Title < 0 || w.Jaccard < 0 {
		return false
	}
	return w.Keyword+w.Entity+w.Title+w.Jaccard > 0
}

// Signals holds the per-signal values, each in [0,1].
type Signals struct {
	Keyword          float64
	Entity           float64
	Title            float64
	Jaccard          float64
	EntityApplicable bool
	SharedEntities   int
}

// Match is the scorer's decision for one pair.
type Match struct {
	Score          float64
	Matched        bool
	EntityFallback bool
	Signals        Signals
}

// Scorer combines weighted signals against a merge threshold.
type Scorer struct {
	weights           Weights
	threshold         float64
	minSharedEntities int
}

// NewScorer builds a Scorer; invalid weights fall back to DefaultWeights.
func NewScorer(weights Weights, threshold float64) *Scorer {
	if !weights.Valid() {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights, threshold: threshold, minSharedEntities: DefaultMinSharedEntities}
}

// Threshold returns the merge threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score compares two analyzed titles.
func (s *Scorer) Score(a, b fingerprint.Features) Match {
	var sig Signals
	sig.Keyword = FuzzyJaccard(a.Stems, b.Stems)
	sig.EntityApplicable = len(a.Entities) > 0 || len(b.Entities) > 0
	if sig.EntityApplicable {
		sig.SharedEntities = shared(a.Entities, b.Entities)
		sig.Entity = ratio(sig.SharedEntities, len(a.Entities), len(b.Entities))
	}
	sig.Title = TitleSimilarity(a.Normalized, b.Normalized)
	sig.Jaccard = Jaccard(a.Words, b.Words)

	total := s.weights.Keyword + s.weights.Title + s.weights.Jaccard
	sum := s.weights.Keyword*sig.Keyword + s.weights.Title*sig.Title + s.weights.Jaccard*sig.Jaccard
	if sig.EntityApplicable {
		total += s.weights.Entity
		sum += s.weights.Entity * sig.Entity
	}

	m := Match{Signals: sig}
	if total > 0 {
		m.Score = sum / total
	}
	m.Matched = m.Score >= s.threshold
	if !m.Matched && sig.SharedEntities >= s.minSharedEntities {
		m.Matched = true
		m.EntityFallback = true
	}
	return m
}

// Best returns the strongest match of a against any of the member titles.
func (s *Scorer) Best(a fingerprint.Features, members []fingerprint.Features) Match {
	var best Match
	for i, m := range members {
		cur := s.Score(a, m)
		if i == 0 || better(cur, best) {
			best = cur
		}
	}
	return best
}

func better(a, b Match) bool {
	if a.Matched != b.Matched {
		return a.Matched
	}
	return a.Score > b.Score
}

// FuzzyJaccard is a Jaccard index where tokens count as equal when they
// share a stem, one is a prefix of the other (shorter side at least four
// runes) or one ends with the other (shorter side at least five runes).
// Each token is matched at most once.
func FuzzyJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matched := 0
	for _, x := range a {
		for j, y := range b {
			if used[j] || !FuzzyEqual(x, y) {
				continue
			}
			used[j] = true
			matched++
			break
		}
	}
	return ratio(matched, len(a), len(b))
}

// FuzzyEqual reports whether two stems refer to the same word.
func FuzzyEqual(x, y string) bool {
	if x == y {
		return true
	}
	short, long := x, y
	if len([]rune(short)) > len([]rune(long)) {
		short, long = long, short
	}
	n := len([]rune(short))
	if n >= 4 && strings.HasPrefix(long, short) {
		return true
	}
	return n >= 5 && strings.HasSuffix(long, short)
}

// Jaccard over distinct tokens.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	return ratio(inter, len(setA), len(setB))
}

// TitleSimilarity is 1 when one normalized title contains the other,
// otherwise 1 - Levenshtein distance / longer length.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Levenshtein returns the edit distance between two strings in runes.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func shared(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	n := 0
	for _, y := range b {
		if _, ok := set[y]; ok {
			n++
			delete(set, y)
		}
	}
	return n
}

func ratio(common, lenA, lenB int) float64 {
	union := lenA + lenB - common
	if union <= 0 {
		return 0
	}
	return float64(common) / float64(union)
}
