package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"agencyops/internal/domain"
	"agencyops/internal/policy"
)

// CalculateMargin composes revenue, direct cost and time value into the
// project's profit, margin percentage and status. Revenue is aggregated
// concurrently with the cost side. Any failed read fails the whole calculation.
func (e Engine) CalculateMargin(ctx context.Context, projectID string) (domain.ProjectMargin, error) {
	var revenue, direct, timeHours, timeValue decimal.Decimal

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		r, err := e.revenue(ctx, projectID)
		if err != nil {
			return err
		}
		revenue = r
		return nil
	})
	p.Go(func(ctx context.Context) error {
		c, err := e.directCost(ctx, projectID)
		if err != nil {
			return err
		}
		h, v, err := e.timeValue(ctx, projectID)
		if err != nil {
			return err
		}
		direct, timeHours, timeValue = c, h, v
		return nil
	})
	if err := p.Wait(); err != nil {
		return domain.ProjectMargin{}, fmt.Errorf("calculate margin for project %s: %w", projectID, err)
	}

	total := direct.Add(timeValue)
	profit := revenue.Sub(total)
	margin := percentOf(profit, revenue).InexactFloat64()
	return domain.ProjectMargin{
		ProjectID: projectID,
		Revenue:   revenue.InexactFloat64(),
		Costs: domain.CostBreakdown{
			Direct:    direct.InexactFloat64(),
			TimeValue: timeValue.InexactFloat64(),
			Total:     total.InexactFloat64(),
		},
		Profit:           profit.InexactFloat64(),
		MarginPercentage: margin,
		Status:           policy.ClassifyMargin(margin),
		BillableHours:    timeHours.InexactFloat64(),
	}, nil
}

// CalculateMarginsBatch computes margins for many projects. Projects are
// processed in sequential groups of the configured batch size, members of a
// group concurrently. A project that fails is logged and reported with status
// unknown; it never affects the others.
func (e Engine) CalculateMarginsBatch(ctx context.Context, projectIDs []string) map[string]domain.BatchMargin {
	ids := distinct(projectIDs)
	res := make(map[string]domain.BatchMargin, len(ids))
	size := e.batchSize()
	for start := 0; start < len(ids); start += size {
		group := ids[start:min(start+size, len(ids))]
		mapper := iter.Mapper[string, domain.BatchMargin]{MaxGoroutines: len(group)}
		margins := mapper.Map(group, func(id *string) domain.BatchMargin {
			return e.isolatedMargin(ctx, *id)
		})
		for i, id := range group {
			res[id] = margins[i]
		}
	}
	return res
}

func (e Engine) isolatedMargin(ctx context.Context, projectID string) domain.BatchMargin {
	var (
		m   domain.ProjectMargin
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { m, err = e.CalculateMargin(ctx, projectID) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		e.logger().WithFields(logrus.Fields{"project_id": projectID, "error": err}).
			Warn("margin calculation failed; reporting unknown status")
		return domain.BatchMargin{Status: domain.MarginUnknown}
	}
	return domain.BatchMargin{Profit: m.Profit, MarginPercentage: m.MarginPercentage, Status: m.Status}
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
