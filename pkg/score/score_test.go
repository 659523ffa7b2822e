package score_test

import (
	"math"
	"testing"

	"github.com/lxm0851/shadowing/pkg/score"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScore_PerfectAttempt(t *testing.T) {
	t.Parallel()
	const ref = "the quick brown fox jumps over the lazy dog"
	if got := score.Score(ref, ref); got != 100 {
		t.Errorf("Score(ref, ref) = %v, want 100", got)
	}
}

func TestScore_EmptyInputs(t *testing.T) {
	t.Parallel()
	if got := score.Score("hello world", ""); got != 0 {
		t.Errorf("empty hypothesis scored %v, want 0", got)
	}
	if got := score.Score("", "hello world"); got != 0 {
		t.Errorf("empty reference scored %v, want 0", got)
	}
}

func TestScore_CaseAndPunctuationInsensitive(t *testing.T) {
	t.Parallel()
	if got := score.Score("Hello, World!", "hello world"); got != 100 {
		t.Errorf("Score = %v, want 100", got)
	}
}

func TestScore_PartialWithAdjacencyBonus(t *testing.T) {
	t.Parallel()
	// 2 of 5 tokens matched, one ordered pair.
	got := score.Score("hello world how are you", "hello world")
	if !almost(got, 40.5) {
		t.Errorf("Score = %v, want 40.5", got)
	}
}

func TestScore_OrderMatters(t *testing.T) {
	t.Parallel()
	inOrder := score.Score("one two three four", "one two")
	scrambled := score.Score("one two three four", "two one")
	if !almost(inOrder, 50.5) {
		t.Errorf("in-order Score = %v, want 50.5", inOrder)
	}
	if !almost(scrambled, 50) {
		t.Errorf("scrambled Score = %v, want 50", scrambled)
	}
}

func TestScore_MultisetIntersection(t *testing.T) {
	t.Parallel()
	// The duplicated reference token is only satisfied once.
	got := score.Score("the the cat", "the cat")
	if math.Abs(got-200.0/3) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, 200.0/3)
	}
}

func TestTokenize_KeepsContractions(t *testing.T) {
	t.Parallel()
	got := score.Tokenize("Don't stop -- believing!")
	want := []string{"don't", "stop", "believing"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFeedbackBands(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score float64
		want  score.Band
	}{
		{100, score.BandExcellent},
		{90, score.BandExcellent},
		{89.9, score.BandVeryGood},
		{80, score.BandVeryGood},
		{70, score.BandGood},
		{60, score.BandFair},
		{50, score.BandKeepTrying},
		{49.9, score.BandListenMore},
		{0, score.BandListenMore},
	}
	for _, c := range cases {
		if got := score.Feedback(c.score); got != c.want {
			t.Errorf("Feedback(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestNearMisses_PhoneticConfusion(t *testing.T) {
	t.Parallel()
	hints := score.NearMisses("the weather is nice", "the whether is nice")
	if len(hints) != 1 {
		t.Fatalf("NearMisses = %v, want one hint", hints)
	}
	if hints[0].Want != "weather" || hints[0].Heard != "whether" {
		t.Errorf("hint = %+v, want weather/whether", hints[0])
	}
}

func TestNearMisses_NoneOnPerfectMatch(t *testing.T) {
	t.Parallel()
	if hints := score.NearMisses("hello world", "hello world"); hints != nil {
		t.Errorf("NearMisses = %v, want nil", hints)
	}
}

func TestNearMisses_UnrelatedExtraWordIgnored(t *testing.T) {
	t.Parallel()
	if hints := score.NearMisses("hello world", "hello banana"); len(hints) != 0 {
		t.Errorf("NearMisses = %v, want none for unrelated word", hints)
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	res := score.Evaluate("hello world", "hello world")
	if res.Score != 100 || res.Band != score.BandExcellent {
		t.Errorf("Evaluate = %+v, want perfect score in excellent band", res)
	}
	if res.Feedback == "" || res.FeedbackCN == "" {
		t.Error("Evaluate left feedback text empty")
	}
}
