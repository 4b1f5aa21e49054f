// Package policy holds the classification rules applied to computed margins
// and plan-vs-actual variances.
package policy

import "agencyops/internal/domain"

// Margin thresholds in percent. Each bound is inclusive: a margin of exactly
// ExcellentMargin is excellent.
const (
	ExcellentMargin  = 30.0
	GoodMargin       = 20.0
	AcceptableMargin = 10.0
	PoorMargin       = 0.0
)

// VarianceTolerance is the symmetric band, in percent of planned value, inside
// which a task or service group is considered on budget.
const VarianceTolerance = 10.0

// ClassifyMargin buckets a margin percentage, first match wins.
func ClassifyMargin(marginPercentage float64) domain.MarginStatus {
	switch {
	case marginPercentage >= ExcellentMargin:
		return domain.MarginExcellent
	case marginPercentage >= GoodMargin:
		return domain.MarginGood
	case marginPercentage >= AcceptableMargin:
		return domain.MarginAcceptable
	case marginPercentage >= PoorMargin:
		return domain.MarginPoor
	default:
		return domain.MarginNegative
	}
}

// ClassifyVariance buckets a value variance percentage against the tolerance band.
func ClassifyVariance(valueVariancePercent float64) domain.VarianceStatus {
	switch {
	case valueVariancePercent <= -VarianceTolerance:
		return domain.UnderBudget
	case valueVariancePercent >= VarianceTolerance:
		return domain.OverBudget
	default:
		return domain.OnBudget
	}
}
