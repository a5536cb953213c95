// Package stats reduces record snapshots into the figures shown on the
// dashboard and the list and history views.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"adquisiciones/internal/core"
)

// TopCategoryLimit caps the number of categories reported by Aggregate.
const TopCategoryLimit = 3

var hundred = decimal.NewFromInt(100)

// Aggregate computes dashboard statistics over the active records.
// now is the reference instant for the "this month" counter.
// The input slice is never modified.
func Aggregate(records []core.Record, now time.Time) core.DashboardStatistics {
	out := core.DashboardStatistics{
		TotalBudget:   decimal.Zero,
		TopCategories: []core.CategoryShare{},
	}

	suppliers := make(map[string]struct{})
	categories := newCategoryFold()

	for _, r := range records {
		if !r.Active {
			continue
		}
		out.TotalActiveRecords++
		out.TotalBudget = out.TotalBudget.Add(r.Budget)

		if name := strings.TrimSpace(r.Supplier); name != "" {
			suppliers[name] = struct{}{}
		}
		if r.AcquisitionDate.InMonthOf(now) {
			out.RecordsThisMonth++
		}

		categories.add(r)
	}
	out.UniqueSupplierCount = len(suppliers)

	if out.TotalActiveRecords == 0 {
		return out
	}

	shares := categories.shares()
	for i := range shares {
		shares[i].Percentage = percentage(shares[i].Value, out.TotalBudget)
	}

	// Ties keep first-seen order.
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].Value.GreaterThan(shares[j].Value)
	})
	if len(shares) > TopCategoryLimit {
		shares = shares[:TopCategoryLimit]
	}
	out.TopCategories = shares
	return out
}

func percentage(value, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return value.Div(total).Mul(hundred).InexactFloat64()
}

// CategoryTotals returns Σ totalValue per category over active records,
// untruncated and in first-seen order.
func CategoryTotals(records []core.Record) []core.CategoryShare {
	fold := newCategoryFold()
	for _, r := range records {
		if r.Active {
			fold.add(r)
		}
	}
	return fold.shares()
}

type categoryFold struct {
	totals map[string]decimal.Decimal
	order  []string
}

func newCategoryFold() *categoryFold {
	return &categoryFold{totals: make(map[string]decimal.Decimal)}
}

func (f *categoryFold) add(r core.Record) {
	current, seen := f.totals[r.Category]
	if !seen {
		f.order = append(f.order, r.Category)
	}
	f.totals[r.Category] = current.Add(r.TotalValue)
}

func (f *categoryFold) shares() []core.CategoryShare {
	out := make([]core.CategoryShare, 0, len(f.order))
	for _, c := range f.order {
		out = append(out, core.CategoryShare{Category: c, Value: f.totals[c]})
	}
	return out
}
