package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agencyops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var clientID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &clientID, &p.Status, &p.BudgetTotal, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if clientID.Valid {
		p.ClientID = &clientID.String
	}
	return p, err
}

const projectColumns = `id,name,client_id,status,budget_total,created_at`

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullableStringPtr(p.ClientID), p.Status, p.BudgetTotal, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id, name, status string) error {
	var (
		fields []string
		args   []any
	)
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProjectBudget overwrites the project's budget total.
func (r Repo) UpdateProjectBudget(ctx context.Context, projectID string, budget float64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET budget_total=? WHERE id=?`, budget, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertClient(ctx context.Context, c domain.Client) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO clients(id,name,created_at) VALUES (?,?,?)`, c.ID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) InsertService(ctx context.Context, s domain.Service) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO services(id,name) VALUES (?,?)`, s.ID, s.Name)
	return err
}

func (r Repo) InsertSeniorityLevel(ctx context.Context, s domain.SeniorityLevel) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO seniority_levels(id,name) VALUES (?,?)`, s.ID, s.Name)
	return err
}

func (r Repo) InsertPerson(ctx context.Context, p domain.Person) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO people(id,name,billable_rate,cost_rate,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.BillableRate, p.CostRate, p.CreatedAt)
	return err
}

func (r Repo) GetPerson(ctx context.Context, id string) (domain.Person, error) {
	var p domain.Person
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,billable_rate,cost_rate,created_at FROM people WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.BillableRate, &p.CostRate, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// UpdatePersonRates changes a person's current rates. Nil leaves a rate untouched.
func (r Repo) UpdatePersonRates(ctx context.Context, id string, billable, cost *float64) error {
	var (
		fields []string
		args   []any
	)
	if billable != nil {
		fields = append(fields, "billable_rate=?")
		args = append(args, *billable)
	}
	if cost != nil {
		fields = append(fields, "cost_rate=?")
		args = append(args, *cost)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE people SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertCost(ctx context.Context, c domain.Cost) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO costs(id,project_id,description,amount,category,is_estimated,incurred_on,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, nullable(c.Description), c.Amount, c.Category, boolToInt(c.IsEstimated), nullable(c.IncurredOn), c.CreatedAt)
	return err
}

// ListCosts returns every cost recorded for the project, estimated or not.
func (r Repo) ListCosts(ctx context.Context, projectID string) ([]domain.Cost, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,COALESCE(description,''),amount,category,is_estimated,COALESCE(incurred_on,''),created_at
FROM costs WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Cost
	for rows.Next() {
		var c domain.Cost
		var estimated int
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Description, &c.Amount, &c.Category, &estimated, &c.IncurredOn, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.IsEstimated = estimated == 1
		res = append(res, c)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
