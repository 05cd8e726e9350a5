package engine

import (
	"sort"

	"savingsrate/internal/core"

	"github.com/shopspring/decimal"
)

type monthAcc struct {
	bucket       core.MonthlyBucket
	incomeNotes  []string
	savingsNotes []string
	fiNotes      []string
}

// Aggregate buckets one profile's transactions by calendar month.
//
// Income rows contribute gross pay, employer match and taxes; savings rows
// contribute savings, the total balance (the last row of the month in sheet
// order wins) and percent-FI notes. A month seen in only one stream still
// gets a bucket with the other side at zero. Buckets come back in ascending
// month order.
func Aggregate(income, savings []core.Transaction, merger NoteMerger) []core.MonthlyBucket {
	accs := map[core.MonthKey]*monthAcc{}
	get := func(k core.MonthKey) *monthAcc {
		a, ok := accs[k]
		if !ok {
			a = &monthAcc{bucket: core.MonthlyBucket{
				Month:        k,
				Gross:        decimal.Zero,
				Match:        decimal.Zero,
				Taxes:        decimal.Zero,
				Savings:      decimal.Zero,
				TotalBalance: decimal.Zero,
			}}
			accs[k] = a
		}
		return a
	}

	for _, tx := range income {
		a := get(core.MonthOf(tx.Date))
		a.bucket.Gross = a.bucket.Gross.Add(tx.Gross)
		a.bucket.Match = a.bucket.Match.Add(tx.Match)
		a.bucket.Taxes = a.bucket.Taxes.Add(tx.Taxes)
		a.bucket.IncomeRows++
		a.incomeNotes = append(a.incomeNotes, tx.Note)
	}
	for _, tx := range savings {
		a := get(core.MonthOf(tx.Date))
		a.bucket.Savings = a.bucket.Savings.Add(tx.Savings)
		a.bucket.SavingsRows++
		a.savingsNotes = append(a.savingsNotes, tx.Note)
		a.fiNotes = append(a.fiNotes, tx.PercentFINote)
		if tx.HasTotalBalance {
			a.bucket.TotalBalance = tx.TotalBalance
			a.bucket.HasTotalBalance = true
		}
	}

	keys := make([]core.MonthKey, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	buckets := make([]core.MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		a := accs[k]
		a.bucket.Notes = merger.Merge(a.incomeNotes, a.savingsNotes)
		a.bucket.PercentFINotes = merger.Merge(nil, a.fiNotes)
		buckets = append(buckets, a.bucket)
	}
	return buckets
}
