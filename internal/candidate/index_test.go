package candidate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

func period(t fingerprint.PeriodType, year, n int) *fingerprint.Period {
	p := &fingerprint.Period{Type: t, Year: year}
	switch t {
	case fingerprint.PeriodMonth:
		p.Month = n
	case fingerprint.PeriodQuarter:
		p.Quarter = n
	}
	return p
}

func TestGeneralIndex_EntityAndYearFallback(t *testing.T) {
	right := []fingerprint.Fingerprint{
		{MarketID: "a", Entities: []string{"BITCOIN"}},
		{MarketID: "b", Entities: []string{"ETHEREUM"}},
		{MarketID: "c", Dates: []fingerprint.DateMention{{Year: 2025, Precision: fingerprint.PrecisionYear, Fallback: true}}},
		{MarketID: "d", Dates: []fingerprint.DateMention{{Year: 2026, Precision: fingerprint.PrecisionYear}}},
	}
	ix := Build(KindGeneral, right, 0)
	assert.Equal(t, 4, ix.Len())

	assert.Equal(t, []string{"a"}, ix.Candidates(&fingerprint.Fingerprint{Entities: []string{"BITCOIN"}}))

	noEntity := &fingerprint.Fingerprint{Dates: []fingerprint.DateMention{{Year: 2025, Precision: fingerprint.PrecisionDay, Month: 3, Day: 1}}}
	assert.Equal(t, []string{"c"}, ix.Candidates(noEntity))

	assert.Empty(t, ix.Candidates(&fingerprint.Fingerprint{Entities: []string{"SOLANA"}}))
}

func TestMacroIndex_PeriodExpansion(t *testing.T) {
	right := []fingerprint.Fingerprint{
		{MarketID: "m-jan", MacroEntities: []string{"CPI"}, Period: period(fingerprint.PeriodMonth, 2026, 1)},
		{MarketID: "m-q1", MacroEntities: []string{"CPI"}, Period: period(fingerprint.PeriodQuarter, 2026, 1)},
		{MarketID: "m-2026", MacroEntities: []string{"CPI"}, Period: period(fingerprint.PeriodYear, 2026, 0)},
		{MarketID: "m-apr", MacroEntities: []string{"CPI"}, Period: period(fingerprint.PeriodMonth, 2026, 4)},
		{MarketID: "m-2027", MacroEntities: []string{"CPI"}, Period: period(fingerprint.PeriodMonth, 2027, 1)},
		{MarketID: "gdp-jan", MacroEntities: []string{"GDP"}, Period: period(fingerprint.PeriodMonth, 2026, 1)},
		{MarketID: "no-period", MacroEntities: []string{"CPI"}},
	}
	ix := Build(KindMacro, right, 0)

	tests := []struct {
		name string
		p    *fingerprint.Period
		want []string
	}{
		{"month probes quarter and year", period(fingerprint.PeriodMonth, 2026, 1), []string{"m-2026", "m-jan", "m-q1"}},
		{"quarter probes year and months", period(fingerprint.PeriodQuarter, 2026, 1), []string{"m-2026", "m-jan", "m-q1"}},
		{"year probes everything inside", period(fingerprint.PeriodYear, 2026, 0), []string{"m-2026", "m-apr", "m-jan", "m-q1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left := &fingerprint.Fingerprint{MacroEntities: []string{"CPI"}, Period: tt.p}
			assert.Equal(t, tt.want, ix.Candidates(left))
		})
	}

	assert.Len(t, ExpandPeriod(*period(fingerprint.PeriodYear, 2026, 0)), 17)
	assert.Empty(t, ix.Candidates(&fingerprint.Fingerprint{MacroEntities: []string{"CPI"}}))
}

func TestCryptoIndex_AdjacentDays(t *testing.T) {
	right := []fingerprint.Fingerprint{
		{MarketID: "d29", Entities: []string{"BITCOIN"}, SettleDate: "2025-12-29"},
		{MarketID: "d30", Entities: []string{"BITCOIN"}, SettleDate: "2025-12-30"},
		{MarketID: "d31", Entities: []string{"BITCOIN"}, SettleDate: "2025-12-31"},
		{MarketID: "d01", Entities: []string{"BITCOIN"}, SettleDate: "2026-01-01"},
		{MarketID: "eth31", Entities: []string{"ETHEREUM"}, SettleDate: "2025-12-31"},
	}
	ix := Build(KindCrypto, right, 0)

	left := &fingerprint.Fingerprint{Entities: []string{"BITCOIN"}, SettleDate: "2025-12-31"}
	assert.Equal(t, []string{"d01", "d30", "d31"}, ix.Candidates(left))
}

func TestIntradayIndex_ExactBucket(t *testing.T) {
	right := []fingerprint.Fingerprint{
		{MarketID: "a", Entities: []string{"BITCOIN"}, TimeBucket: "2026-10-17T19:30"},
		{MarketID: "b", Entities: []string{"BITCOIN"}, TimeBucket: "2026-10-17T19:45"},
	}
	ix := Build(KindIntraday, right, 0)

	left := &fingerprint.Fingerprint{Entities: []string{"BITCOIN"}, TimeBucket: "2026-10-17T19:30"}
	assert.Equal(t, []string{"a"}, ix.Candidates(left))
}

func TestCandidates_CapKeepsHighestOverlap(t *testing.T) {
	var right []fingerprint.Fingerprint
	for i := 0; i < 10; i++ {
		right = append(right, fingerprint.Fingerprint{
			MarketID: fmt.Sprintf("r%02d", i),
			Entities: []string{"BITCOIN"},
		})
	}
	right[7].Entities = []string{"BITCOIN", "ETHEREUM"}
	right[8].Entities = []string{"BITCOIN", "ETHEREUM"}
	right[3].Tokens = []string{"above", "bitcoin"}

	ix := Build(KindGeneral, right, 3)
	left := &fingerprint.Fingerprint{Entities: []string{"BITCOIN", "ETHEREUM"}, Tokens: []string{"above", "bitcoin"}}

	got := ix.Candidates(left)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"r03", "r07", "r08"}, got)

	// Same input, same answer.
	assert.Equal(t, got, ix.Candidates(left))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("macro")
	require.NoError(t, err)
	assert.Equal(t, KindMacro, k)

	_, err = ParseKind("sports")
	assert.Error(t, err)
}
