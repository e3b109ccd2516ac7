package fingerprint

import (
	"strings"
	"unicode"
)

// stopwords are dropped before salience ranking. Generic headline verbs and
// framing words are included so they never dominate a fingerprint.
var stopwords = toSet(`a an and are as at be been but by can could did do does for from had has have he her his
how i if in into is it its just may me more most my new news no not now of off on one or our out over says
she so than that the their them then there these they this those to too up us was we were what when where
which who why will with would you your after amid about again against all also any back before being
between both during each few here live latest only other own same should some such under until update
updates very via vs watch while report reports report video photos`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// IsStopword reports whether a lower-cased token carries no story signal.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Normalize lower-cases s, replaces punctuation with spaces and collapses runs
// of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Words splits a title into normalized tokens.
func Words(title string) []string {
	return strings.Fields(Normalize(title))
}

// Stem strips the common English inflections that make the same word look
// different across outlets ("hits"/"hit", "rattled"/"rattle").
func Stem(token string) string {
	n := len([]rune(token))
	switch {
	case n > 4 && strings.HasSuffix(token, "ies"):
		return strings.TrimSuffix(token, "ies") + "y"
	case n > 6 && strings.HasSuffix(token, "ing"):
		return strings.TrimSuffix(token, "ing")
	case n > 4 && strings.HasSuffix(token, "ed"):
		return strings.TrimSuffix(token, "ed")
	case n > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") && !strings.HasSuffix(token, "us"):
		return strings.TrimSuffix(token, "s")
	}
	return token
}

// ContentTokens returns stemmed, stop-word-free tokens in first-seen order
// without duplicates. Single characters and bare numbers are dropped.
func ContentTokens(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || IsStopword(w) || isNumber(w) {
			continue
		}
		stem := Stem(w)
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		out = append(out, stem)
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
