package score

import "github.com/antzucaro/matchr"

// jwHintThreshold is the minimum Jaro-Winkler similarity for a leftover
// hypothesis token to count as a near miss of a reference token.
const jwHintThreshold = 0.80

// Hint pairs a reference word the learner missed with the word the
// recognizer heard in its place. Only plausible confusions are reported:
// the two words must share a Double Metaphone code or be close in
// Jaro-Winkler distance.
type Hint struct {
	Want       string
	Heard      string
	Similarity float64
}

// NearMisses diagnoses mispronunciations: reference tokens absent from the
// hypothesis are paired against hypothesis tokens that matched nothing,
// phonetic candidates first, Jaro-Winkler ranked. Each leftover hypothesis
// token is consumed by at most one hint.
func NearMisses(reference, hypothesis string) []Hint {
	missedRef, extraHyp := leftovers(Tokenize(reference), Tokenize(hypothesis))
	if len(missedRef) == 0 || len(extraHyp) == 0 {
		return nil
	}

	var hints []Hint
	used := make([]bool, len(extraHyp))
	for _, want := range missedRef {
		bestIdx, bestScore, bestPhonetic := -1, 0.0, false
		for i, heard := range extraHyp {
			if used[i] {
				continue
			}
			phonetic := codesOverlap(want, heard)
			jw := matchr.JaroWinkler(want, heard, false)
			if !phonetic && jw < jwHintThreshold {
				continue
			}
			// A phonetic match outranks any purely fuzzy one.
			if phonetic != bestPhonetic {
				if !phonetic {
					continue
				}
				bestIdx, bestScore, bestPhonetic = i, jw, true
				continue
			}
			if jw > bestScore {
				bestIdx, bestScore = i, jw
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			hints = append(hints, Hint{Want: want, Heard: extraHyp[bestIdx], Similarity: bestScore})
		}
	}
	return hints
}

// leftovers returns the reference tokens with no hypothesis counterpart and
// the hypothesis tokens that satisfied no reference token, preserving order.
func leftovers(ref, hyp []string) (missedRef, extraHyp []string) {
	remaining := make(map[string]int, len(hyp))
	for _, t := range hyp {
		remaining[t]++
	}
	for _, t := range ref {
		if remaining[t] > 0 {
			remaining[t]--
		} else {
			missedRef = append(missedRef, t)
		}
	}
	for _, t := range hyp {
		if remaining[t] > 0 {
			remaining[t]--
			extraHyp = append(extraHyp, t)
		}
	}
	return missedRef, extraHyp
}

// codesOverlap reports whether two words share a Double Metaphone code.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap == "" && as == "" {
		return false
	}
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || (bs != "" && x == bs) {
			return true
		}
	}
	return false
}
