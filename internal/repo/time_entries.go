package repo

import (
	"context"
	"database/sql"
	"errors"

	"agencyops/internal/domain"
)

const ratedEntryQuery = `SELECT e.id,e.project_id,e.task_id,e.person_id,e.started_at,e.ended_at,e.duration_seconds,e.billable,COALESCE(e.note,''),
p.billable_rate,p.cost_rate
FROM time_entries e
JOIN people p ON p.id = e.person_id`

func (r Repo) InsertTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO time_entries(id,project_id,task_id,person_id,started_at,ended_at,duration_seconds,billable,note) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, nullableStringPtr(e.TaskID), e.PersonID, e.StartedAt, nullableStringPtr(e.EndedAt),
		e.DurationSeconds, boolToInt(e.Billable), nullable(e.Note))
	return err
}

// StopTimeEntry sets the end marker on a running entry.
func (r Repo) StopTimeEntry(ctx context.Context, id, endedAt string, durationSeconds int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE time_entries SET ended_at=?, duration_seconds=? WHERE id=? AND ended_at IS NULL`,
		endedAt, durationSeconds, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTimeEntry(ctx context.Context, id string) (domain.RatedTimeEntry, error) {
	e, err := scanRatedEntry(r.DB.QueryRowContext(ctx, ratedEntryQuery+` WHERE e.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// ListTimeEntriesByProject returns every entry of the project, running ones
// included, joined with the person's current rates.
func (r Repo) ListTimeEntriesByProject(ctx context.Context, projectID string) ([]domain.RatedTimeEntry, error) {
	return r.listRatedEntries(ctx, ratedEntryQuery+` WHERE e.project_id=? ORDER BY e.started_at, e.id`, projectID)
}

// ListTimeEntriesByTask returns every entry booked on the task, joined with
// the person's current rates.
func (r Repo) ListTimeEntriesByTask(ctx context.Context, taskID string) ([]domain.RatedTimeEntry, error) {
	return r.listRatedEntries(ctx, ratedEntryQuery+` WHERE e.task_id=? ORDER BY e.started_at, e.id`, taskID)
}

func (r Repo) listRatedEntries(ctx context.Context, query string, args ...any) ([]domain.RatedTimeEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RatedTimeEntry
	for rows.Next() {
		e, err := scanRatedEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func scanRatedEntry(row interface{ Scan(...any) error }) (domain.RatedTimeEntry, error) {
	var e domain.RatedTimeEntry
	var taskID, endedAt sql.NullString
	var billable int
	err := row.Scan(&e.ID, &e.ProjectID, &taskID, &e.PersonID, &e.StartedAt, &endedAt, &e.DurationSeconds, &billable, &e.Note,
		&e.BillableRate, &e.CostRate)
	if err != nil {
		return e, err
	}
	if taskID.Valid {
		e.TaskID = &taskID.String
	}
	if endedAt.Valid {
		e.EndedAt = &endedAt.String
	}
	e.Billable = billable == 1
	return e, nil
}
