// Package fingerprint derives coarse, collision-tolerant signatures from
// article titles. Signatures are deliberately small so that related headlines
// collide; the similarity scorer filters out false candidates.
package fingerprint

import (
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"NewsDesk/internal/domain"
)

const (
	DefaultKeywords   = 3
	DefaultEntities   = 2
	DefaultHashLength = 6
)

// Features is everything the scorer needs to know about one title.
type Features struct {
	Normalized  string
	Words       []string
	Stems       []string
	Entities    []string
	Fingerprint domain.Fingerprint
}

// Generator builds fingerprints with a fixed signature size.
type Generator struct {
	keywords   int
	entities   int
	hashLength int
}

// NewGenerator returns a Generator. Non-positive sizes fall back to defaults.
func NewGenerator(keywords, entities, hashLength int) *Generator {
	if keywords <= 0 {
		keywords = DefaultKeywords
	}
	if entities < 0 {
		entities = DefaultEntities
	}
	if hashLength <= 0 || hashLength > 8 {
		hashLength = DefaultHashLength
	}
	return &Generator{keywords: keywords, entities: entities, hashLength: hashLength}
}

// Analyze extracts features and the fingerprint from a raw title.
func (g *Generator) Analyze(title string) Features {
	words := Words(title)
	stems := ContentTokens(words)
	entities := Entities(title)

	fp := domain.Fingerprint{
		Keywords: Salient(stems, g.keywords),
		Entities: head(entities, g.entities),
	}
	fp.Hash = g.hash(fp.Keywords)

	return Features{
		Normalized:  strings.Join(words, " "),
		Words:       words,
		Stems:       stems,
		Entities:    entities,
		Fingerprint: fp,
	}
}

// Generate is Analyze without the intermediate features.
func (g *Generator) Generate(title string) domain.Fingerprint {
	return g.Analyze(title).Fingerprint
}

func (g *Generator) hash(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join(sorted, " ")))
	return hex.EncodeToString(h.Sum(nil))[:g.hashLength]
}

// Salient ranks stems by length, longest first, keeping first-position order
// between equals, and returns at most k of them.
func Salient(stems []string, k int) []string {
	ranked := append([]string(nil), stems...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len([]rune(ranked[i])) > len([]rune(ranked[j]))
	})
	return head(ranked, k)
}

// Entities returns lower-cased proper-noun tokens from a raw title. The first
// word of a sentence is ignored unless it is an acronym. Headlines written in
// Title Case capitalise everything, so there only acronyms and mixed-case
// tokens such as "iPhone" or "McDonald" qualify.
func Entities(title string) []string {
	raw := strings.Fields(title)
	titleCase := isTitleCase(raw)

	seen := make(map[string]struct{})
	var out []string
	sentenceStart := true
	for _, field := range raw {
		word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		atStart := sentenceStart
		sentenceStart = strings.HasSuffix(field, ".") || strings.HasSuffix(field, ":") ||
			strings.HasSuffix(field, "?") || strings.HasSuffix(field, "!")
		if word == "" {
			continue
		}

		var ok bool
		switch {
		case isAcronym(word):
			ok = true
		case isMixedCase(word):
			ok = true
		case titleCase || atStart:
			ok = false
		default:
			ok = isCapitalized(word)
		}
		if !ok {
			continue
		}

		norm := Normalize(word)
		if norm == "" || IsStopword(norm) {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func isTitleCase(words []string) bool {
	var long, capitalized int
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if len([]rune(w)) <= 3 {
			continue
		}
		long++
		if isCapitalized(w) {
			capitalized++
		}
	}
	return long >= 3 && capitalized*4 >= long*3
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func isAcronym(word string) bool {
	letters := 0
	for _, r := range word {
		switch {
		case unicode.IsLetter(r):
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		case unicode.IsDigit(r):
		default:
			return false
		}
	}
	return letters >= 2
}

// isMixedCase matches an upper-case rune after the first position in a word
// that is not entirely upper case.
func isMixedCase(word string) bool {
	for i, r := range []rune(word) {
		if i > 0 && unicode.IsUpper(r) {
			return !isAcronym(word)
		}
	}
	return false
}

func head(items []string, n int) []string {
	if n >= len(items) {
		return append([]string(nil), items...)
	}
	return append([]string(nil), items[:n]...)
}
