package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"agencyops/internal/domain"
	"agencyops/internal/policy"
)

// CalculateTaskVariance compares a task's estimate with the time tracked on it.
// It returns nil without error when the task has no estimated hours or rate.
func (e Engine) CalculateTaskVariance(ctx context.Context, taskID string) (*domain.TaskVariance, error) {
	task, err := e.store().GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if !task.Estimated() {
		return nil, nil
	}
	actual, err := e.taskActuals(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	plannedHours := decimal.NewFromFloat(*task.EstimatedHours)
	plannedRate := decimal.NewFromFloat(*task.EstimatedRate)
	plannedValue := plannedHours.Mul(plannedRate)
	hoursVariance := actual.hours.Sub(plannedHours)
	valueVariance := actual.value.Sub(plannedValue)
	valuePct := percentOf(valueVariance, plannedValue).InexactFloat64()

	return &domain.TaskVariance{
		TaskID:               task.ID,
		ProjectID:            task.ProjectID,
		Title:                task.Title,
		PlannedHours:         plannedHours.InexactFloat64(),
		PlannedRate:          plannedRate.InexactFloat64(),
		PlannedValue:         plannedValue.InexactFloat64(),
		ActualHours:          actual.hours.InexactFloat64(),
		ActualValue:          actual.value.InexactFloat64(),
		RatesUsed:            floats(actual.rates),
		HoursVariance:        hoursVariance.InexactFloat64(),
		HoursVariancePercent: percentOf(hoursVariance, plannedHours).InexactFloat64(),
		ValueVariance:        valueVariance.InexactFloat64(),
		ValueVariancePercent: valuePct,
		Status:               policy.ClassifyVariance(valuePct),
	}, nil
}

func (e Engine) taskActuals(ctx context.Context, taskID string) (actuals, error) {
	entries, err := e.store().ListTimeEntriesByTask(ctx, taskID)
	if err != nil {
		return actuals{}, fmt.Errorf("list time entries for task %s: %w", taskID, err)
	}
	return trackedActuals(ctx, e.rates(), entries)
}

// groupKey identifies a (service, seniority) pair. ranked distinguishes tasks
// without seniority from a seniority level whose id happens to be "none".
type groupKey struct {
	service   string
	seniority string
	ranked    bool
}

type serviceGroup struct {
	key           groupKey
	serviceName   string
	seniorityName string
	tasks         int
	plannedHours  decimal.Decimal
	plannedValue  decimal.Decimal
	actual        actuals
}

// ServiceBreakdown rolls the project's estimated, service-tagged tasks up by
// service and seniority, highest planned value first.
func (e Engine) ServiceBreakdown(ctx context.Context, projectID string) ([]domain.ServiceBreakdownRow, error) {
	tasks, err := e.store().ListServiceTrackedTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list service tasks for project %s: %w", projectID, err)
	}

	groups := make(map[groupKey]*serviceGroup)
	for _, t := range tasks {
		if t.ServiceID == nil || !t.Estimated() {
			continue
		}
		key := groupKey{service: *t.ServiceID, seniority: domain.NoSeniority}
		if t.SeniorityID != nil {
			key.seniority, key.ranked = *t.SeniorityID, true
		}
		g, ok := groups[key]
		if !ok {
			g = &serviceGroup{
				key:           key,
				serviceName:   t.ServiceName,
				seniorityName: t.SeniorityName,
				plannedHours:  decimal.Zero,
				plannedValue:  decimal.Zero,
				actual:        actuals{hours: decimal.Zero, value: decimal.Zero},
			}
			groups[key] = g
		}
		hours := decimal.NewFromFloat(*t.EstimatedHours)
		g.tasks++
		g.plannedHours = g.plannedHours.Add(hours)
		g.plannedValue = g.plannedValue.Add(hours.Mul(decimal.NewFromFloat(*t.EstimatedRate)))

		actual, err := e.taskActuals(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		g.actual = g.actual.add(actual)
	}

	ordered := make([]*serviceGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if c := a.plannedValue.Cmp(b.plannedValue); c != 0 {
			return c > 0
		}
		if a.key.service != b.key.service {
			return a.key.service < b.key.service
		}
		if a.key.ranked != b.key.ranked {
			return !a.key.ranked
		}
		return a.key.seniority < b.key.seniority
	})

	rows := make([]domain.ServiceBreakdownRow, 0, len(ordered))
	for _, g := range ordered {
		var seniorityID *string
		if g.key.ranked {
			id := g.key.seniority
			seniorityID = &id
		}
		hoursVariance := g.actual.hours.Sub(g.plannedHours)
		valueVariance := g.actual.value.Sub(g.plannedValue)
		valuePct := percentOf(valueVariance, g.plannedValue).InexactFloat64()
		rows = append(rows, domain.ServiceBreakdownRow{
			ServiceID:            g.key.service,
			ServiceName:          g.serviceName,
			SeniorityID:          seniorityID,
			SeniorityName:        g.seniorityName,
			TaskCount:            g.tasks,
			PlannedHours:         g.plannedHours.InexactFloat64(),
			PlannedValue:         g.plannedValue.InexactFloat64(),
			ActualHours:          g.actual.hours.InexactFloat64(),
			ActualValue:          g.actual.value.InexactFloat64(),
			HoursVariance:        hoursVariance.InexactFloat64(),
			ValueVariance:        valueVariance.InexactFloat64(),
			ValueVariancePercent: valuePct,
			Status:               policy.ClassifyVariance(valuePct),
		})
	}
	return rows, nil
}
