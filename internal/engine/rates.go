package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"agencyops/internal/domain"
)

// RateResolver supplies the hourly billable rate applied to a tracked
// interval of one person (entry.PersonID between StartedAt and EndedAt).
type RateResolver interface {
	BillableRate(ctx context.Context, entry domain.RatedTimeEntry) (decimal.Decimal, error)
}

// CurrentProfileRate applies the person's rate as it is now, read through the
// join that loaded the entry. The interval is ignored: a rate change re-prices
// every past entry of that person.
type CurrentProfileRate struct{}

func (CurrentProfileRate) BillableRate(_ context.Context, entry domain.RatedTimeEntry) (decimal.Decimal, error) {
	return decimal.NewFromFloat(entry.BillableRate), nil
}
