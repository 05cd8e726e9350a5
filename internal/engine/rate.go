package engine

import (
	"savingsrate/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectiveIncome is gross pay plus employer match minus taxes and fees.
func EffectiveIncome(b core.MonthlyBucket) decimal.Decimal {
	return b.Gross.Add(b.Match).Sub(b.Taxes)
}

// SavingsRate returns 100 × savings ÷ effective income. It is undefined when
// effective income is zero or negative.
func SavingsRate(savings, effectiveIncome decimal.Decimal) core.Rate {
	if !effectiveIncome.IsPositive() {
		return core.Undefined
	}
	return core.DefinedRate(savings.Mul(hundred).Div(effectiveIncome).InexactFloat64())
}

// Calculate derives the rate record of a monthly bucket.
func Calculate(b core.MonthlyBucket, m core.FieldMapping) core.RateRecord {
	effective := EffectiveIncome(b)
	rec := core.RateRecord{
		Month:           b.Month,
		SavingsRate:     SavingsRate(b.Savings, effective),
		EffectiveIncome: effective.InexactFloat64(),
		Savings:         b.Savings.InexactFloat64(),
		Goal:            copyFloat(m.Goal),
		Notes:           b.Notes,
		PercentFINotes:  b.PercentFINotes,
	}
	if pfi, ok := percentFI(b, m); ok {
		rec.PercentFI = &pfi
	}
	return rec
}

func percentFI(b core.MonthlyBucket, m core.FieldMapping) (float64, bool) {
	if m.FITarget == nil || *m.FITarget <= 0 || m.TotalBalance == "" || !b.HasTotalBalance {
		return 0, false
	}
	target := decimal.NewFromFloat(*m.FITarget)
	return b.TotalBalance.Mul(hundred).Div(target).InexactFloat64(), true
}

// Average is the mean of the defined rates of a series.
func Average(records []core.RateRecord) core.Rate {
	total := decimal.Zero
	n := 0
	for _, rec := range records {
		if v, ok := rec.SavingsRate.Value(); ok {
			total = total.Add(decimal.NewFromFloat(v))
			n++
		}
	}
	if n == 0 {
		return core.Undefined
	}
	return core.DefinedRate(total.Div(decimal.NewFromInt(int64(n))).InexactFloat64())
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
