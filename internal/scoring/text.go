package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/eduflow-vn/quiz-engine/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeText lowercases, strips punctuation, trims, and collapses
// internal whitespace so "  The  Answer! " and "the answer" compare equal.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// matchesAccepted reports whether the normalized response satisfies one
// accepted answer, and whether it only did so via fuzzy similarity.
func matchesAccepted(response string, accepted models.AcceptedAnswer, threshold float64) (match, fuzzy bool) {
	if accepted.IsPattern {
		re, err := regexp.Compile(accepted.Text)
		if err != nil {
			// A broken pattern in the key never matches.
			return false, false
		}
		return re.MatchString(response), false
	}

	want := normalizeText(accepted.Text)
	if response == want {
		return true, false
	}
	return stringSimilarity(response, want) >= threshold, true
}

// stringSimilarity is an edit-distance ratio in [0, 1]: insertions and
// deletions cost 1, substitutions 2, normalized by the combined length.
// "hnoi" vs "hanoi" gives 1 - 1/9 = 0.888..., which clears the default
// threshold.
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(indelDistance(ra, rb))/float64(total)
}

func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 2
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = minOf(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}
	return matrix[len(a)][len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
