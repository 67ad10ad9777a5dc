package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

func at(s string) *time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return &t
}

func month(y, m int) fingerprint.Period {
	return fingerprint.Period{Type: fingerprint.PeriodMonth, Year: y, Month: m}
}

func quarter(y, q int) fingerprint.Period {
	return fingerprint.Period{Type: fingerprint.PeriodQuarter, Year: y, Quarter: q}
}

func year(y int) fingerprint.Period {
	return fingerprint.Period{Type: fingerprint.PeriodYear, Year: y}
}

func TestPeriodCompatTable(t *testing.T) {
	tests := []struct {
		a, b   fingerprint.Period
		compat Compat
		score  float64
	}{
		{month(2026, 1), month(2026, 1), CompatExact, 0.4},
		{month(2026, 1), quarter(2026, 1), CompatMonthInQuarter, 0.24},
		{quarter(2026, 1), month(2026, 1), CompatMonthInQuarter, 0.24},
		{quarter(2026, 2), year(2026), CompatQuarterInYear, 0.22},
		{month(2026, 7), year(2026), CompatMonthInYear, 0.18},
		{month(2026, 4), quarter(2026, 1), CompatNone, 0},
		{year(2026), month(2027, 1), CompatNone, 0},
		{quarter(2025, 4), quarter(2026, 4), CompatNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.a.Key()+"~"+tt.b.Key(), func(t *testing.T) {
			assert.Equal(t, tt.compat, PeriodCompat(tt.a, tt.b))
			assert.InDelta(t, tt.score, PeriodScore(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierStrong, TierOf(CompatExact))
	assert.Equal(t, TierStrong, TierOf(CompatMonthInQuarter))
	assert.Equal(t, TierStrong, TierOf(CompatQuarterInYear))
	assert.Equal(t, TierWeak, TierOf(CompatMonthInYear))
	assert.Equal(t, TierWeak, TierOf(CompatNone))
}

func TestGeneral_Scenario(t *testing.T) {
	ex := fingerprint.NewExtractor(fingerprint.DefaultTables("crypto"), fingerprint.Options{})
	left := ex.Extract("pm-1", "Bitcoin above $100,000 on Dec 31, 2025?", at("2025-12-31T23:00:00Z"), nil)
	right := ex.Extract("k-1", "BTC > $100k by end of Dec 2025", at("2025-12-31T22:00:00Z"), nil)

	res := New(candidate.KindGeneral, DefaultConfig()).Score(&left, &right)
	assert.Equal(t, GateNone, res.Gate)
	assert.Greater(t, res.Score, 0.6)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.Empty(t, res.Tier)
	assert.Contains(t, res.Reason, "intent=PRICE_DATE/METRIC_DATE")
}

func TestEntityNumeralIsNotAThreshold(t *testing.T) {
	ex := fingerprint.NewExtractor(fingerprint.DefaultTables("all"), fingerprint.Options{})
	left := ex.Extract("pm-1", "Will the S&P 500 close above 6000 on Dec 31, 2025?", at("2025-12-31T21:00:00Z"), nil)
	right := ex.Extract("k-1", "S&P 500 above 5000 on December 31, 2025", at("2025-12-31T21:00:00Z"), nil)
	require.Equal(t, []float64{6000}, left.Numbers)
	require.Equal(t, []float64{5000}, right.Numbers)

	for _, kind := range []candidate.Kind{candidate.KindGeneral, candidate.KindCrypto} {
		res := New(kind, DefaultConfig()).Score(&left, &right)
		assert.Contains(t, res.Reason, "number=0.00", kind)
	}
}

func TestCurrencyStrikeInYearRange(t *testing.T) {
	ex := fingerprint.NewExtractor(fingerprint.DefaultTables("crypto"), fingerprint.Options{})
	left := ex.Extract("pm-1", "Will ETH hit $2000 on Dec 31, 2025?", at("2025-12-31T23:00:00Z"), nil)
	same := ex.Extract("k-1", "Ethereum above $2,000 on Dec 31, 2025", at("2025-12-31T22:00:00Z"), nil)
	other := ex.Extract("k-2", "Ethereum above $3,000 on Dec 31, 2025", at("2025-12-31T22:00:00Z"), nil)

	c := New(candidate.KindCrypto, DefaultConfig())
	match := c.Score(&left, &same)
	miss := c.Score(&left, &other)
	assert.Contains(t, match.Reason, "number=1.00")
	assert.Contains(t, miss.Reason, "number=0.00")
	assert.Greater(t, match.Score-miss.Score, 0.15)
}

func TestGeneral_DateGateStrictness(t *testing.T) {
	ex := fingerprint.NewExtractor(fingerprint.DefaultTables("crypto"), fingerprint.Options{})
	left := ex.Extract("pm-1", "Bitcoin above $100,000 on Dec 31, 2025?", nil, nil)
	right := ex.Extract("k-2", "Bitcoin above $100,000 on Jan 15, 2026?", nil, nil)
	require.Equal(t, fingerprint.IntentPriceDate, left.Intent)

	res := New(candidate.KindGeneral, DefaultConfig()).Score(&left, &right)
	assert.Equal(t, GateDate, res.Gate)
	assert.Zero(t, res.Score)
	assert.False(t, res.Passed())

	adjacent := ex.Extract("k-3", "Bitcoin above $100,000 on Jan 1, 2026?", nil, nil)
	res = New(candidate.KindGeneral, DefaultConfig()).Score(&left, &adjacent)
	assert.Equal(t, GateNone, res.Gate)
}

func TestGeneral_DateGateUsesCloseTime(t *testing.T) {
	left := &fingerprint.Fingerprint{
		Entities: []string{"BITCOIN"}, Intent: fingerprint.IntentPriceDate, Numbers: []float64{100000},
		Dates:  []fingerprint.DateMention{{Year: 2025, Month: 12, Day: 31, Precision: fingerprint.PrecisionDay}},
		Tokens: []string{"100000", "above", "bitcoin"}, Normalized: "bitcoin above 100000",
	}
	right := &fingerprint.Fingerprint{
		Entities: []string{"BITCOIN"}, Intent: fingerprint.IntentGeneral, Numbers: []float64{100000},
		Dates:     []fingerprint.DateMention{{Year: 2026, Precision: fingerprint.PrecisionYear, Fallback: true}},
		CloseTime: at("2026-03-01T00:00:00Z"),
		Tokens:    []string{"100000", "above", "bitcoin"}, Normalized: "bitcoin above 100000",
	}
	g := New(candidate.KindGeneral, DefaultConfig())
	assert.Equal(t, GateDate, g.Score(left, right).Gate)

	right.CloseTime = at("2025-12-31T20:00:00Z")
	assert.Equal(t, GateNone, g.Score(left, right).Gate)
}

func TestGeneral_TextGate(t *testing.T) {
	left := &fingerprint.Fingerprint{
		Entities: []string{"DONALD_TRUMP"}, Intent: fingerprint.IntentGeneral,
		Tokens: []string{"acquire", "greenland"}, Normalized: "donald_trump acquire greenland",
	}
	right := &fingerprint.Fingerprint{
		Entities: []string{"DONALD_TRUMP"}, Intent: fingerprint.IntentGeneral,
		Tokens: []string{"china", "tariffs"}, Normalized: "donald_trump china tariffs",
	}
	res := New(candidate.KindGeneral, DefaultConfig()).Score(left, right)
	assert.Equal(t, GateText, res.Gate)
	assert.Zero(t, res.Score)
	assert.Contains(t, res.Reason, "gate=text")
}

func TestGeneral_TypeGate(t *testing.T) {
	left := &fingerprint.Fingerprint{Entities: []string{"BITCOIN"}, Intraday: true}
	right := &fingerprint.Fingerprint{Entities: []string{"BITCOIN"}}
	res := New(candidate.KindGeneral, DefaultConfig()).Score(left, right)
	assert.Equal(t, GateType, res.Gate)
	assert.Zero(t, res.Score)
}

func macroFP(entity string, p *fingerprint.Period) *fingerprint.Fingerprint {
	return &fingerprint.Fingerprint{
		Entities:      []string{entity},
		MacroEntities: []string{entity},
		Period:        p,
		Intent:        fingerprint.IntentMacroPeriod,
	}
}

func TestMacro(t *testing.T) {
	m := New(candidate.KindMacro, DefaultConfig())
	jan, q1, y26, jan27 := month(2026, 1), quarter(2026, 1), year(2026), month(2027, 1)

	res := m.Score(macroFP("CPI", &jan), macroFP("CPI", &q1))
	assert.Equal(t, GateNone, res.Gate)
	assert.Equal(t, CompatMonthInQuarter, res.Compat)
	assert.Equal(t, TierStrong, res.Tier)
	assert.InDelta(t, 0.79, res.Score, 1e-9)

	res = m.Score(macroFP("CPI", &jan), macroFP("CPI", &y26))
	assert.Equal(t, CompatMonthInYear, res.Compat)
	assert.Equal(t, TierWeak, res.Tier)

	res = m.Score(macroFP("CPI", &y26), macroFP("CPI", &jan27))
	assert.Equal(t, GatePeriod, res.Gate)
	assert.Zero(t, res.Score)

	res = m.Score(macroFP("CPI", nil), macroFP("CPI", &jan))
	assert.Equal(t, GatePeriod, res.Gate)

	res = m.Score(macroFP("CPI", &jan), macroFP("GDP", &jan))
	assert.Equal(t, GateEntity, res.Gate)
	assert.Zero(t, res.Score)

	res = m.Score(macroFP("CPI", &jan), macroFP("CPI", &jan))
	assert.Equal(t, CompatExact, res.Compat)
	assert.Equal(t, "STRONG", res.Meta()["tier"])
}

func cryptoFP(settle string, cmp fingerprint.Comparator) *fingerprint.Fingerprint {
	return &fingerprint.Fingerprint{
		Entities:   []string{"BITCOIN"},
		Numbers:    []float64{100000},
		SettleDate: settle,
		Comparator: cmp,
	}
}

func TestCrypto(t *testing.T) {
	c := New(candidate.KindCrypto, DefaultConfig())

	same := c.Score(cryptoFP("2025-12-31", fingerprint.ComparatorGTE), cryptoFP("2025-12-31", fingerprint.ComparatorGTE))
	assert.Equal(t, GateNone, same.Gate)
	assert.InDelta(t, 0.9, same.Score, 1e-9)

	adjacent := c.Score(cryptoFP("2025-12-31", fingerprint.ComparatorGTE), cryptoFP("2026-01-01", fingerprint.ComparatorGTE))
	assert.Equal(t, GateNone, adjacent.Gate)
	assert.InDelta(t, 0.81, adjacent.Score, 1e-9)

	opposed := c.Score(cryptoFP("2025-12-31", fingerprint.ComparatorGTE), cryptoFP("2025-12-31", fingerprint.ComparatorLTE))
	assert.InDelta(t, same.Score/2, opposed.Score, 1e-9)

	far := c.Score(cryptoFP("2025-12-31", fingerprint.ComparatorGTE), cryptoFP("2026-01-03", fingerprint.ComparatorGTE))
	assert.Equal(t, GateDate, far.Gate)
	assert.Zero(t, far.Score)

	eth := cryptoFP("2025-12-31", fingerprint.ComparatorGTE)
	eth.Entities = []string{"ETHEREUM"}
	assert.Equal(t, GateEntity, c.Score(cryptoFP("2025-12-31", ""), eth).Gate)

	intraday := cryptoFP("2025-12-31", fingerprint.ComparatorGTE)
	intraday.Intraday = true
	assert.Equal(t, GateType, c.Score(cryptoFP("2025-12-31", ""), intraday).Gate)
}

func TestIntraday(t *testing.T) {
	s := New(candidate.KindIntraday, DefaultConfig())
	mk := func(bucket string, intraday bool) *fingerprint.Fingerprint {
		return &fingerprint.Fingerprint{Entities: []string{"BITCOIN"}, TimeBucket: bucket, Intraday: intraday}
	}

	res := s.Score(mk("2026-10-17T19:30", true), mk("2026-10-17T19:30", true))
	assert.Equal(t, GateNone, res.Gate)
	assert.InDelta(t, 0.9, res.Score, 1e-9)

	res = s.Score(mk("2026-10-17T19:30", true), mk("2026-10-17T19:45", true))
	assert.Equal(t, GateDate, res.Gate)

	res = s.Score(mk("2026-10-17T19:30", true), mk("2026-10-17T19:30", false))
	assert.Equal(t, GateType, res.Gate)
	assert.Zero(t, res.Score)
}

func TestNumberCompat(t *testing.T) {
	assert.Equal(t, 0.5, numberCompat(nil, nil))
	assert.Equal(t, 0.0, numberCompat([]float64{1}, nil))
	assert.Equal(t, 1.0, numberCompat([]float64{100000}, []float64{100000}))
	assert.Equal(t, 0.9, numberCompat([]float64{100000}, []float64{100500}))
	assert.Equal(t, 0.5, numberCompat([]float64{100000}, []float64{103000}))
	assert.Equal(t, 0.0, numberCompat([]float64{100000}, []float64{90000}))
}
