package repo

import (
	"context"
	"database/sql"
	"errors"

	"agencyops/internal/domain"
)

const taskColumns = `t.id,t.project_id,t.title,t.service_id,t.seniority_id,t.estimated_hours,t.estimated_rate,t.created_at`

func scanTask(row interface{ Scan(...any) error }, extra ...any) (domain.Task, error) {
	var t domain.Task
	var serviceID, seniorityID sql.NullString
	var hours, rate sql.NullFloat64
	dest := append([]any{&t.ID, &t.ProjectID, &t.Title, &serviceID, &seniorityID, &hours, &rate, &t.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	if serviceID.Valid {
		t.ServiceID = &serviceID.String
	}
	if seniorityID.Valid {
		t.SeniorityID = &seniorityID.String
	}
	if hours.Valid {
		t.EstimatedHours = &hours.Float64
	}
	if rate.Valid {
		t.EstimatedRate = &rate.Float64
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,service_id,seniority_id,estimated_hours,estimated_rate,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullableStringPtr(t.ServiceID), nullableStringPtr(t.SeniorityID),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.EstimatedRate), t.CreatedAt)
	return err
}

// UpdateTaskEstimate replaces both estimation fields; nil clears a field.
func (r Repo) UpdateTaskEstimate(ctx context.Context, id string, hours, rate *float64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET estimated_hours=?, estimated_rate=? WHERE id=?`,
		nullableFloatPtr(hours), nullableFloatPtr(rate), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id))
}

func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.project_id=? ORDER BY t.created_at, t.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListServiceTrackedTasks returns the project's tasks that reference a
// service, joined with service and seniority names.
func (r Repo) ListServiceTrackedTasks(ctx context.Context, projectID string) ([]domain.TrackedTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+`, COALESCE(s.name,''), COALESCE(sl.name,'')
FROM tasks t
LEFT JOIN services s ON s.id = t.service_id
LEFT JOIN seniority_levels sl ON sl.id = t.seniority_id
WHERE t.project_id=? AND t.service_id IS NOT NULL
ORDER BY t.created_at, t.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TrackedTask
	for rows.Next() {
		var tt domain.TrackedTask
		task, err := scanTask(rows, &tt.ServiceName, &tt.SeniorityName)
		if err != nil {
			return nil, err
		}
		tt.Task = task
		res = append(res, tt)
	}
	return res, rows.Err()
}
