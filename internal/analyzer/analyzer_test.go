package analyzer

import (
	"math"
	"testing"
	"time"

	"DigitPulse/internal/domain/models"
)

var testNow = time.Unix(1_700_000_000, 0)

func feed(a Analyzer, market string, digits []int) {
	for _, d := range digits {
		a.OnDigit(market, d)
	}
}

func repeatCycle(cycle []int, n int) []int {
	out := make([]int, 0, n)
	for len(out) < n {
		out = append(out, cycle[len(out)%len(cycle)])
	}
	return out
}

func TestMomentumNormalizedByMaxAverage(t *testing.T) {
	// first half averages 2, second half averages 7
	data := []int{2, 2, 2, 2, 7, 7, 7, 7}
	got := momentum(data)
	want := (7.0 - 2.0) / 4.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("momentum = %v, want %v", got, want)
	}
}

func TestEntropyUniformDistribution(t *testing.T) {
	freq := make(map[int]int)
	for d := 0; d <= 9; d++ {
		freq[d] = 10
	}
	got := entropy(freq, 100)
	if math.Abs(got-math.Log2(10)) > 1e-9 {
		t.Fatalf("uniform entropy = %v, want %v", got, math.Log2(10))
	}
}

func TestZoneClassificationBoundaries(t *testing.T) {
	// 200 digits: digit 7 appears 26 times (ratio exactly 1.3, hot),
	// digit 3 appears 14 times (ratio exactly 0.7, cold), the rest are
	// uniform at 20 each.
	var data []int
	for i := 0; i < 26; i++ {
		data = append(data, 7)
	}
	for i := 0; i < 14; i++ {
		data = append(data, 3)
	}
	for _, d := range []int{0, 1, 2, 4, 5, 6, 8, 9} {
		for i := 0; i < 20; i++ {
			data = append(data, d)
		}
	}
	if len(data) != 200 {
		t.Fatalf("test data length = %d, want 200", len(data))
	}

	zd := classifyZones(data, testNow)
	if len(zd.HotDigits) != 1 || zd.HotDigits[0] != 7 {
		t.Fatalf("hot zone = %v, want [7]", zd.HotDigits)
	}
	if len(zd.ColdDigits) != 1 || zd.ColdDigits[0] != 3 {
		t.Fatalf("cold zone = %v, want [3]", zd.ColdDigits)
	}
	if len(zd.NeutralDigits) != 8 {
		t.Fatalf("neutral zone = %v, want 8 digits", zd.NeutralDigits)
	}
	if s := zd.ZoneStrength[7]; math.Abs(s-0.3) > 1e-9 {
		t.Fatalf("zone strength for 7 = %v, want 0.3", s)
	}
}

func TestZonesColdDigitEntry(t *testing.T) {
	z := NewZones(func() time.Time { return testNow })

	// digit 3 occurs early and then disappears for well over 50 ticks
	var data []int
	for i := 0; i < 14; i++ {
		data = append(data, 3)
	}
	data = append(data, repeatCycle([]int{0, 1, 2, 4, 5, 6, 7, 8, 9}, 186)...)
	feed(z, "R_10", data)

	z.Maintain()
	zd := z.ZonesFor("R_10")
	if zd == nil {
		t.Fatal("zones not classified")
	}
	found := false
	for _, d := range zd.ColdDigits {
		if d == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("digit 3 not classified cold: %v", zd.ColdDigits)
	}

	signals := z.Generate(testNow)
	if len(signals) != 1 {
		t.Fatalf("expected one zone signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Entry != 3 {
		t.Fatalf("entry = %d, want cold digit 3", s.Entry)
	}
	if s.Type != models.SignalUnder {
		t.Fatalf("type = %s, want UNDER for entry below 5", s.Type)
	}
	if s.Source != models.SourceZones {
		t.Fatalf("source = %s", s.Source)
	}
	if !s.Valid(testNow) || s.Valid(testNow.Add(46*time.Second)) {
		t.Fatal("zone signal validity window should be 45s")
	}
}

func TestFrequencyOverDominanceSignalsUnderReversal(t *testing.T) {
	f := NewFrequency()
	data := append(repeatCycle([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 50),
		repeatCycle([]int{5, 6, 7, 8, 9}, 50)...)
	feed(f, "R_10", data)

	signals := f.Generate(testNow)
	var ou *models.Signal
	for i := range signals {
		if signals[i].Strategy == "Patel Statistical Analysis" {
			ou = &signals[i]
		}
	}
	if ou == nil {
		t.Fatalf("no over/under signal in %d signals", len(signals))
	}
	if ou.Type != models.SignalUnder {
		t.Fatalf("type = %s, want UNDER after over dominance", ou.Type)
	}
	if ou.Confidence != models.ConfidenceHigh {
		t.Fatalf("confidence = %s, want HIGH at full dominance", ou.Confidence)
	}
	if ou.Entry < 5 {
		t.Fatalf("entry digit %d should be one of the hot high digits", ou.Entry)
	}
}

func TestFrequencyEvenDominanceSignalsOddReversal(t *testing.T) {
	f := NewFrequency()
	data := append(repeatCycle([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 70),
		repeatCycle([]int{0, 2, 4, 6, 8}, 30)...)
	feed(f, "R_10", data)

	signals := f.Generate(testNow)
	var eo *models.Signal
	for i := range signals {
		if signals[i].Strategy == "Patel Even/Odd Analysis" {
			eo = &signals[i]
		}
	}
	if eo == nil {
		t.Fatalf("no even/odd signal in %d signals", len(signals))
	}
	if eo.Type != models.SignalOdd {
		t.Fatalf("type = %s, want ODD after even dominance", eo.Type)
	}
	if eo.Confidence != models.ConfidenceHigh {
		t.Fatalf("confidence = %s, want HIGH at full even dominance", eo.Confidence)
	}
}

func TestFrequencyBelowMinimumHistoryStaysQuiet(t *testing.T) {
	f := NewFrequency()
	feed(f, "R_10", repeatCycle([]int{5, 6, 7, 8, 9}, 99))
	if signals := f.Generate(testNow); len(signals) != 0 {
		t.Fatalf("expected no signals under 100 ticks, got %d", len(signals))
	}
}

func TestPatternTableConfidence(t *testing.T) {
	p := NewPattern()
	// 1,2,3 is always followed by 7 and ends the stream
	data := []int{1, 2, 3, 7, 0, 0, 1, 2, 3, 7, 4, 4, 1, 2, 3, 7, 5, 5, 1, 2, 3}
	feed(p, "R_10", data)
	p.Maintain()

	rows := p.TopPatterns("R_10", 50)
	var row *PatternMatch
	for i := range rows {
		if digitsEqual(rows[i].Pattern, []int{1, 2, 3}) {
			row = &rows[i]
		}
	}
	if row == nil {
		t.Fatal("pattern 1,2,3 missing from table")
	}
	if row.Occurrences != 3 {
		t.Fatalf("occurrences = %d, want 3", row.Occurrences)
	}
	// mode share 1.0, recency 1 - 15/1000, frequency 1 + 3/10
	want := 1.0 * (1 - 15.0/1000) * 1.3
	if math.Abs(row.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", row.Confidence, want)
	}

	signals := p.Generate(testNow)
	if len(signals) != 1 {
		t.Fatalf("expected one pattern signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Entry != 7 {
		t.Fatalf("predicted digit = %d, want 7", s.Entry)
	}
	if s.Type != models.SignalOver {
		t.Fatalf("type = %s, want OVER for digit 7", s.Type)
	}
	if s.Confidence != models.ConfidenceHigh {
		t.Fatalf("confidence = %s, want HIGH at unanimous follower", s.Confidence)
	}
}

func TestPatternBelowOccurrenceFloorStaysQuiet(t *testing.T) {
	p := NewPattern()
	// the tail 1,2,3 occurs only twice, below the occurrence floor
	feed(p, "R_10", []int{1, 2, 3, 7, 9, 9, 9, 9, 9, 8, 1, 2, 3})
	p.Maintain()
	if signals := p.Generate(testNow); len(signals) != 0 {
		t.Fatalf("expected no signals, got %d", len(signals))
	}
}

func TestTrendEvenDominanceSignalsOdd(t *testing.T) {
	tr := NewTrend()
	data := append(repeatCycle([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 30),
		repeatCycle([]int{0, 2, 4, 6, 8}, 30)...)
	feed(tr, "R_10", data)

	signals := tr.Generate(testNow)
	var dom *models.Signal
	for i := range signals {
		if signals[i].Strategy == "Trend Analysis" {
			dom = &signals[i]
		}
	}
	if dom == nil {
		t.Fatalf("no dominance signal in %d signals", len(signals))
	}
	if dom.Type != models.SignalOdd {
		t.Fatalf("type = %s, want ODD", dom.Type)
	}
	if dom.Confidence != models.ConfidenceHigh {
		t.Fatalf("confidence = %s, want HIGH", dom.Confidence)
	}
}

func TestNeuralForwardPassDeterministic(t *testing.T) {
	a := NewNeural(42)
	b := NewNeural(42)
	c := NewNeural(7)

	input := make([]float64, neuralInputSize)
	for i := range input {
		input[i] = float64(i%10) / 9
	}

	pa := a.forwardPass(input)
	pb := b.forwardPass(input)
	pc := c.forwardPass(input)

	var sum float64
	for i := range pa {
		sum += pa[i]
		if pa[i] != pb[i] {
			t.Fatalf("same seed diverged at output %d: %v vs %v", i, pa[i], pb[i])
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("softmax outputs sum to %v, want 1", sum)
	}

	same := true
	for i := range pa {
		if pa[i] != pc[i] {
			same = false
		}
	}
	if same {
		t.Fatal("different seeds produced identical outputs")
	}
}

func TestNeuralGenerateReproducible(t *testing.T) {
	a := NewNeural(42)
	b := NewNeural(42)
	history := repeatCycle([]int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}, 60)
	feed(a, "R_10", history)
	feed(b, "R_10", history)

	sa := a.Generate(testNow)
	sb := b.Generate(testNow)
	if len(sa) != len(sb) {
		t.Fatalf("signal counts diverged: %d vs %d", len(sa), len(sb))
	}
	for i := range sa {
		if sa[i].Type != sb[i].Type || sa[i].Entry != sb[i].Entry || sa[i].Confidence != sb[i].Confidence {
			t.Fatalf("signal %d diverged: %+v vs %+v", i, sa[i], sb[i])
		}
	}
}

func TestDigitHistoryBounded(t *testing.T) {
	h := newDigitHistory(5)
	for d := 0; d < 8; d++ {
		h.push(d)
	}
	if h.size() != 5 {
		t.Fatalf("size = %d, want 5", h.size())
	}
	if got := h.tail(3); !digitsEqual(got, []int{5, 6, 7}) {
		t.Fatalf("tail = %v", got)
	}
	if h.gapSince(5) != 2 {
		t.Fatalf("gapSince(5) = %d, want 2", h.gapSince(5))
	}
	if h.gapSince(0) != 5 {
		t.Fatalf("gapSince(0) = %d, want full window", h.gapSince(0))
	}
}
