package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SyncProjectBudget sets the project's budget total to its current revenue.
// It is best effort: failures are logged and never returned to the caller.
func (e Engine) SyncProjectBudget(ctx context.Context, projectID string) {
	if err := e.syncProjectBudget(ctx, projectID); err != nil {
		e.logger().WithFields(logrus.Fields{"project_id": projectID, "error": err}).
			Error("project budget sync failed")
	}
}

func (e Engine) syncProjectBudget(ctx context.Context, projectID string) error {
	revenue, err := e.revenue(ctx, projectID)
	if err != nil {
		return err
	}
	budget := revenue.InexactFloat64()
	if err := e.store().UpdateProjectBudget(ctx, projectID, budget); err != nil {
		return fmt.Errorf("update project budget: %w", err)
	}
	e.logger().WithFields(logrus.Fields{"project_id": projectID, "budget_total": budget}).
		Debug("project budget synced")
	return nil
}
