package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyops/internal/domain"
	"agencyops/internal/events"
)

// ValidationError reports input rejected before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DocumentCreateOptions are parameters for recording a revenue document.
type DocumentCreateOptions struct {
	ProjectID   string
	Kind        domain.DocumentKind
	Status      domain.DocumentStatus
	Number      string
	NetAmount   float64
	VATPercent  float64
	GrossAmount *float64
	IssueDate   string
	ActorID     string
}

// DocumentUpdateOptions changes a revenue document. Nil fields are left as they are.
type DocumentUpdateOptions struct {
	ProjectID   *string
	Kind        *domain.DocumentKind
	Status      *domain.DocumentStatus
	Number      *string
	NetAmount   *float64
	VATPercent  *float64
	GrossAmount *float64
	IssueDate   *string
	ActorID     string
}

func (e Engine) CreateDocument(ctx context.Context, opts DocumentCreateOptions) (domain.RevenueDocument, error) {
	if opts.ProjectID == "" {
		return domain.RevenueDocument{}, invalid("project_id", "project is required")
	}
	if opts.Status == "" {
		opts.Status = domain.DocumentDraft
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.RevenueDocument{}, fmt.Errorf("get project %s: %w", opts.ProjectID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.RevenueDocument{
		ID:         uuid.NewString(),
		ProjectID:  opts.ProjectID,
		Kind:       opts.Kind,
		Status:     opts.Status,
		Number:     opts.Number,
		NetAmount:  opts.NetAmount,
		VATPercent: opts.VATPercent,
		IssueDate:  opts.IssueDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.GrossAmount = grossAmount(d.NetAmount, d.VATPercent, opts.GrossAmount)
	if err := validateDocument(d); err != nil {
		return domain.RevenueDocument{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RevenueDocument{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDocumentTx(ctx, tx, d); err != nil {
		return domain.RevenueDocument{}, fmt.Errorf("insert document: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.DocumentCreated, d.ProjectID, "document", d.ID, opts.ActorID, documentPayload(d)); err != nil {
		return domain.RevenueDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RevenueDocument{}, err
	}
	e.SyncProjectBudget(context.WithoutCancel(ctx), d.ProjectID)
	return d, nil
}

// UpdateDocument applies opts to a document. Moving a document to another
// project resynchronizes both budgets.
func (e Engine) UpdateDocument(ctx context.Context, id string, opts DocumentUpdateOptions) (domain.RevenueDocument, error) {
	if opts.ProjectID != nil {
		if _, err := e.Repo.GetProject(ctx, *opts.ProjectID); err != nil {
			return domain.RevenueDocument{}, fmt.Errorf("get project %s: %w", *opts.ProjectID, err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RevenueDocument{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDocumentTx(ctx, tx, id)
	if err != nil {
		return domain.RevenueDocument{}, fmt.Errorf("get document %s: %w", id, err)
	}
	previousProject := d.ProjectID
	amountsChanged := opts.NetAmount != nil || opts.VATPercent != nil
	if opts.ProjectID != nil {
		d.ProjectID = *opts.ProjectID
	}
	if opts.Kind != nil {
		d.Kind = *opts.Kind
	}
	if opts.Status != nil {
		d.Status = *opts.Status
	}
	if opts.Number != nil {
		d.Number = *opts.Number
	}
	if opts.NetAmount != nil {
		d.NetAmount = *opts.NetAmount
	}
	if opts.VATPercent != nil {
		d.VATPercent = *opts.VATPercent
	}
	if opts.IssueDate != nil {
		d.IssueDate = *opts.IssueDate
	}
	if opts.GrossAmount != nil || amountsChanged {
		d.GrossAmount = grossAmount(d.NetAmount, d.VATPercent, opts.GrossAmount)
	}
	d.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := validateDocument(d); err != nil {
		return domain.RevenueDocument{}, err
	}

	if err := e.Repo.UpdateDocumentTx(ctx, tx, d); err != nil {
		return domain.RevenueDocument{}, fmt.Errorf("update document: %w", err)
	}
	payload := documentPayload(d)
	if previousProject != d.ProjectID {
		payload["previous_project_id"] = previousProject
	}
	if err := e.Events.Append(ctx, tx, events.DocumentUpdated, d.ProjectID, "document", d.ID, opts.ActorID, payload); err != nil {
		return domain.RevenueDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RevenueDocument{}, err
	}

	syncCtx := context.WithoutCancel(ctx)
	e.SyncProjectBudget(syncCtx, d.ProjectID)
	if previousProject != d.ProjectID {
		e.SyncProjectBudget(syncCtx, previousProject)
	}
	return d, nil
}

func (e Engine) DeleteDocument(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDocumentTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("get document %s: %w", id, err)
	}
	if err := e.Repo.DeleteDocumentTx(ctx, tx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.DocumentDeleted, d.ProjectID, "document", d.ID, actorID, documentPayload(d)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.SyncProjectBudget(context.WithoutCancel(ctx), d.ProjectID)
	return nil
}

func validateDocument(d domain.RevenueDocument) error {
	switch d.Kind {
	case domain.DocumentQuote, domain.DocumentInvoice, domain.DocumentCreditNote:
	default:
		return invalid("kind", "unknown document kind %q", d.Kind)
	}
	switch d.Status {
	case domain.DocumentDraft, domain.DocumentSent, domain.DocumentApproved, domain.DocumentRejected:
	default:
		return invalid("status", "unknown document status %q", d.Status)
	}
	if math.IsNaN(d.NetAmount) || math.IsInf(d.NetAmount, 0) {
		return invalid("net_amount", "must be a finite number")
	}
	if d.VATPercent < 0 {
		return invalid("vat_percent", "must not be negative")
	}
	return nil
}

// grossAmount returns explicit when set, otherwise net plus VAT.
func grossAmount(net, vatPercent float64, explicit *float64) float64 {
	if explicit != nil {
		return *explicit
	}
	n := decimal.NewFromFloat(net)
	vat := n.Mul(decimal.NewFromFloat(vatPercent)).Div(hundred)
	return n.Add(vat).Round(2).InexactFloat64()
}

func documentPayload(d domain.RevenueDocument) events.Payload {
	return events.Payload{
		"kind":       d.Kind,
		"status":     d.Status,
		"net_amount": d.NetAmount,
	}
}
