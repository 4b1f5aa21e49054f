package repo

import (
	"context"
	"database/sql"
	"errors"

	"agencyops/internal/domain"
)

const documentColumns = `id,project_id,kind,status,COALESCE(number,''),net_amount,vat_percent,gross_amount,COALESCE(issue_date,''),created_at,updated_at`

func scanDocument(row interface{ Scan(...any) error }) (domain.RevenueDocument, error) {
	var d domain.RevenueDocument
	err := row.Scan(&d.ID, &d.ProjectID, &d.Kind, &d.Status, &d.Number, &d.NetAmount, &d.VATPercent, &d.GrossAmount,
		&d.IssueDate, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.RevenueDocument) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO revenue_documents(id,project_id,kind,status,number,net_amount,vat_percent,gross_amount,issue_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.Kind, d.Status, nullable(d.Number), d.NetAmount, d.VATPercent, d.GrossAmount,
		nullable(d.IssueDate), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) UpdateDocumentTx(ctx context.Context, tx *sql.Tx, d domain.RevenueDocument) error {
	res, err := tx.ExecContext(ctx, `UPDATE revenue_documents SET project_id=?, kind=?, status=?, number=?, net_amount=?, vat_percent=?, gross_amount=?, issue_date=?, updated_at=? WHERE id=?`,
		d.ProjectID, d.Kind, d.Status, nullable(d.Number), d.NetAmount, d.VATPercent, d.GrossAmount, nullable(d.IssueDate), d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDocumentTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM revenue_documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.RevenueDocument, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM revenue_documents WHERE id=?`, id))
}

func (r Repo) GetDocumentTx(ctx context.Context, tx *sql.Tx, id string) (domain.RevenueDocument, error) {
	return scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM revenue_documents WHERE id=?`, id))
}

// ListRevenueDocuments lists a project's documents of one kind and status.
func (r Repo) ListRevenueDocuments(ctx context.Context, projectID string, kind domain.DocumentKind, status domain.DocumentStatus) ([]domain.RevenueDocument, error) {
	return r.listDocuments(ctx, `SELECT `+documentColumns+` FROM revenue_documents WHERE project_id=? AND kind=? AND status=? ORDER BY created_at, id`,
		projectID, kind, status)
}

// ListDocuments lists every document of a project.
func (r Repo) ListDocuments(ctx context.Context, projectID string) ([]domain.RevenueDocument, error) {
	return r.listDocuments(ctx, `SELECT `+documentColumns+` FROM revenue_documents WHERE project_id=? ORDER BY created_at, id`, projectID)
}

func (r Repo) listDocuments(ctx context.Context, query string, args ...any) ([]domain.RevenueDocument, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RevenueDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
