package metadata

import (
	"strings"
	"unicode"
)

// BestMatch returns the highest scoring identification candidate. Equal
// scores keep the order the service returned them in, so the first one
// wins.
func BestMatch(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	return best, true
}

// BestCandidate picks the text-search result closest to q and returns it
// together with its similarity score.
func BestCandidate(q Query, candidates []Record) (Record, float64) {
	if len(candidates) == 0 {
		return Record{}, 0
	}
	best := candidates[0]
	bestScore := score(q, best)
	for _, c := range candidates[1:] {
		if s := score(q, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// MinSimilarity is the lowest score PickCandidate accepts.
const MinSimilarity = 0.5

// PickCandidate is BestCandidate for sources that may return unrelated
// songs: it reports false when nothing scores at least MinSimilarity.
func PickCandidate(q Query, candidates []Record) (Record, bool) {
	best, s := BestCandidate(q, candidates)
	if len(candidates) == 0 || s < MinSimilarity {
		return Record{}, false
	}
	return best, true
}

// score computes a similarity score (0.0-1.0) between the query and a result.
// Album-only queries compare album titles instead of track titles.
func score(q Query, r Record) float64 {
	titleScore := similarity(fold(q.Title), fold(r.Title))
	if q.Title == "" && q.Album != "" {
		titleScore = similarity(fold(q.Album), fold(r.Album))
	}
	artistScore := similarity(fold(q.Artist), fold(r.Artist))

	if q.Artist == "" {
		return titleScore
	}
	// Weight: 60% title, 40% artist
	return titleScore*0.6 + artistScore*0.4
}

// similarity returns how similar two strings are (0.0-1.0).
// Uses both token overlap and compact string comparison to handle cases
// like "theweeknd" vs "the weeknd".
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	if strings.ReplaceAll(a, " ", "") == strings.ReplaceAll(b, " ", "") {
		return 1.0
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	matches := 0
	for _, t := range tokensA {
		if setB[t] {
			matches++
		}
	}

	maxLen := len(tokensA)
	if len(tokensB) > maxLen {
		maxLen = len(tokensB)
	}
	return float64(matches) / float64(maxLen)
}

// fold lowercases and strips non-alphanumeric characters for comparison.
func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
