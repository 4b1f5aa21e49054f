package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"agencyops/internal/domain"
)

var (
	secondsPerHour = decimal.NewFromInt(3600)
	hundred        = decimal.NewFromInt(100)
)

// TimeValue is the billable value of a project's completed, billable time.
type TimeValue struct {
	Hours float64 `json:"hours"`
	Value float64 `json:"value"`
}

// Revenue sums the net amount of the project's approved quotes.
func (e Engine) Revenue(ctx context.Context, projectID string) (float64, error) {
	revenue, err := e.revenue(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return revenue.InexactFloat64(), nil
}

// DirectCost sums every recorded cost of the project.
func (e Engine) DirectCost(ctx context.Context, projectID string) (float64, error) {
	cost, err := e.directCost(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return cost.InexactFloat64(), nil
}

// TimeValue sums completed billable time of the project at resolved rates.
func (e Engine) TimeValue(ctx context.Context, projectID string) (TimeValue, error) {
	hours, value, err := e.timeValue(ctx, projectID)
	if err != nil {
		return TimeValue{}, err
	}
	return TimeValue{Hours: hours.InexactFloat64(), Value: value.InexactFloat64()}, nil
}

func (e Engine) revenue(ctx context.Context, projectID string) (decimal.Decimal, error) {
	docs, err := e.store().ListRevenueDocuments(ctx, projectID, domain.DocumentQuote, domain.DocumentApproved)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list revenue documents: %w", err)
	}
	total := decimal.Zero
	for _, d := range docs {
		if !d.RevenueBearing() {
			continue
		}
		total = total.Add(decimal.NewFromFloat(d.NetAmount))
	}
	return total, nil
}

func (e Engine) directCost(ctx context.Context, projectID string) (decimal.Decimal, error) {
	costs, err := e.store().ListCosts(ctx, projectID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list costs: %w", err)
	}
	total := decimal.Zero
	for _, c := range costs {
		total = total.Add(decimal.NewFromFloat(c.Amount))
	}
	return total, nil
}

func (e Engine) timeValue(ctx context.Context, projectID string) (decimal.Decimal, decimal.Decimal, error) {
	entries, err := e.store().ListTimeEntriesByProject(ctx, projectID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("list time entries: %w", err)
	}
	return billableTimeValue(ctx, e.rates(), entries)
}

// billableTimeValue is the project-level aggregation: only completed AND
// billable entries count, for hours as well as for value.
func billableTimeValue(ctx context.Context, rates RateResolver, entries []domain.RatedTimeEntry) (decimal.Decimal, decimal.Decimal, error) {
	hours, value := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		if !entry.Completed() || !entry.Billable {
			continue
		}
		rate, err := rates.BillableRate(ctx, entry)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("resolve rate for entry %s: %w", entry.ID, err)
		}
		hours = hours.Add(entryHours(entry))
		value = value.Add(entryValue(entry, rate))
	}
	return hours, value, nil
}

// actuals is what a task actually consumed.
type actuals struct {
	hours decimal.Decimal
	value decimal.Decimal
	rates []decimal.Decimal
}

func (a actuals) add(other actuals) actuals {
	a.hours = a.hours.Add(other.hours)
	a.value = a.value.Add(other.value)
	for _, r := range other.rates {
		a.rates = appendDistinct(a.rates, r)
	}
	return a
}

// trackedActuals is the task-level aggregation. Hours count every completed
// entry whatever its billable flag; value and the applied rates only come from
// billable ones. It must stay separate from billableTimeValue.
func trackedActuals(ctx context.Context, rates RateResolver, entries []domain.RatedTimeEntry) (actuals, error) {
	res := actuals{hours: decimal.Zero, value: decimal.Zero}
	for _, entry := range entries {
		if !entry.Completed() {
			continue
		}
		res.hours = res.hours.Add(entryHours(entry))
		if !entry.Billable {
			continue
		}
		rate, err := rates.BillableRate(ctx, entry)
		if err != nil {
			return actuals{}, fmt.Errorf("resolve rate for entry %s: %w", entry.ID, err)
		}
		res.value = res.value.Add(entryValue(entry, rate))
		res.rates = appendDistinct(res.rates, rate)
	}
	return res, nil
}

func entryHours(entry domain.RatedTimeEntry) decimal.Decimal {
	return decimal.NewFromInt(entry.DurationSeconds).Div(secondsPerHour)
}

// entryValue multiplies before dividing so whole-minute durations price exactly.
func entryValue(entry domain.RatedTimeEntry, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(entry.DurationSeconds).Mul(rate).Div(secondsPerHour)
}

func appendDistinct(rates []decimal.Decimal, rate decimal.Decimal) []decimal.Decimal {
	for _, r := range rates {
		if r.Equal(rate) {
			return rates
		}
	}
	return append(rates, rate)
}

// percentOf returns delta as a percentage of base, or zero when base is not positive.
func percentOf(delta, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return delta.Div(base).Mul(hundred)
}

func floats(ds []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.InexactFloat64())
	}
	return out
}
