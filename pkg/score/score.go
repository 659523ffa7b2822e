// Package score rates a recognized attempt against the reference line of a
// subtitle segment.
//
// The score is a token-overlap measure in [0, 100]: both strings are
// lower-cased, stripped of non-word characters and tokenized on whitespace;
// the base score is the multiset intersection of the token lists divided by
// the reference length, with a small bonus for tokens spoken in the right
// order. [Feedback] maps the number to one of six qualitative bands with
// bilingual display text.
//
// On top of the number, [NearMisses] diagnoses which reference words were
// likely mispronounced rather than skipped, using Double Metaphone phonetic
// codes with Jaro-Winkler ranking.
package score

import (
	"strings"
	"unicode"
)

// Band is a qualitative rating derived from the numeric score.
type Band int

const (
	BandListenMore Band = iota
	BandKeepTrying
	BandFair
	BandGood
	BandVeryGood
	BandExcellent
)

// adjacencyBonus is added for every reference position spoken in order.
const adjacencyBonus = 0.5

// Tokenize lower-cases s, strips non-word characters and splits on
// whitespace. Word characters are letters, digits and the apostrophe, so
// contractions survive ("don't" stays one token).
func Tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Score rates hypothesis against reference and returns a value in [0, 100].
// An empty reference or an empty hypothesis scores 0.
func Score(reference, hypothesis string) float64 {
	ref := Tokenize(reference)
	hyp := Tokenize(hypothesis)
	if len(ref) == 0 || len(hyp) == 0 {
		return 0
	}

	// Multiset intersection: each hypothesis token satisfies at most one
	// reference token.
	remaining := make(map[string]int, len(hyp))
	for _, t := range hyp {
		remaining[t]++
	}
	matched := 0
	for _, t := range ref {
		if remaining[t] > 0 {
			remaining[t]--
			matched++
		}
	}
	s := float64(matched) / float64(len(ref)) * 100

	// Ordered-adjacency bonus for consecutive position matches.
	for i := 0; i+1 < len(ref) && i+1 < len(hyp); i++ {
		if ref[i] == hyp[i] && ref[i+1] == hyp[i+1] {
			s += adjacencyBonus
		}
	}

	if s > 100 {
		s = 100
	}
	return s
}

// Feedback maps a score to its qualitative band.
func Feedback(s float64) Band {
	switch {
	case s >= 90:
		return BandExcellent
	case s >= 80:
		return BandVeryGood
	case s >= 70:
		return BandGood
	case s >= 60:
		return BandFair
	case s >= 50:
		return BandKeepTrying
	default:
		return BandListenMore
	}
}

// Text returns the English display text for the band.
func (b Band) Text() string {
	switch b {
	case BandExcellent:
		return "Excellent! Nearly perfect."
	case BandVeryGood:
		return "Very good, keep it up."
	case BandGood:
		return "Good, a few words slipped."
	case BandFair:
		return "Fair. Try the segment again."
	case BandKeepTrying:
		return "Keep trying, you are getting there."
	default:
		return "Listen to the segment a few more times first."
	}
}

// TextCN returns the Chinese display text for the band.
func (b Band) TextCN() string {
	switch b {
	case BandExcellent:
		return "非常棒！几乎完美。"
	case BandVeryGood:
		return "很好，继续保持。"
	case BandGood:
		return "不错，有几个词没跟上。"
	case BandFair:
		return "还可以，再试一遍这句。"
	case BandKeepTrying:
		return "继续努力，快到了。"
	default:
		return "先多听几遍再跟读吧。"
	}
}

// Result bundles the number, the band and its display text for one attempt.
type Result struct {
	Score      float64
	Band       Band
	Feedback   string
	FeedbackCN string
	Hints      []Hint
}

// Evaluate scores hypothesis against reference and fills in the qualitative
// feedback and near-miss hints.
func Evaluate(reference, hypothesis string) Result {
	s := Score(reference, hypothesis)
	band := Feedback(s)
	return Result{
		Score:      s,
		Band:       band,
		Feedback:   band.Text(),
		FeedbackCN: band.TextCN(),
		Hints:      NearMisses(reference, hypothesis),
	}
}
