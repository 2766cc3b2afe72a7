package autocomplete

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns the sequence similarity of a and b in [0, 1], computed rune
// by rune as 2*M/T where M is the number of matched runes and T the total.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// FuzzyMatch scores how well query matches target, case-insensitively.
//
//	identical                              1.0
//	target starts with query               0.95
//	target contains query                  0.85
//	some query-length window is an anagram 0.75
//	otherwise the best of the sequence ratio, 0.8 x the best windowed ratio
//	(when that is at least 0.75), and 0.8 when query prefixes a target word
func FuzzyMatch(query, target string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(target))
	if q == "" || t == "" {
		return 0
	}

	if q == t {
		return 1.0
	}
	if strings.Contains(t, q) {
		if strings.HasPrefix(t, q) {
			return 0.95
		}
		return 0.85
	}

	qr, tr := []rune(q), []rune(t)
	if anagramWindow(qr, tr) {
		return 0.75
	}

	score := Ratio(q, t)
	if windowed := bestWindowRatio(qr, tr); windowed >= 0.75 {
		score = max(score, windowed*0.8)
	}
	for _, word := range strings.Fields(t) {
		if strings.HasPrefix(word, q) {
			score = max(score, 0.8)
			break
		}
	}
	return score
}

// anagramWindow reports whether any len(q) window of t holds exactly the
// runes of q, which catches adjacent transpositions
func anagramWindow(q, t []rune) bool {
	n := len(q)
	if n == 0 || n > len(t) {
		return false
	}

	want := make(map[rune]int, n)
	for _, r := range q {
		want[r]++
	}
	have := make(map[rune]int, n)
	for i, r := range t {
		have[r]++
		if i >= n {
			old := t[i-n]
			if have[old]--; have[old] == 0 {
				delete(have, old)
			}
		}
		if i >= n-1 && sameCounts(want, have) {
			return true
		}
	}
	return false
}

func sameCounts(a, b map[rune]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func bestWindowRatio(q, t []rune) float64 {
	n := len(q)
	if n == 0 || n > len(t) {
		return 0
	}
	query := string(q)
	best := 0.0
	for i := 0; i+n <= len(t); i++ {
		if r := Ratio(query, string(t[i:i+n])); r > best {
			best = r
		}
	}
	return best
}
