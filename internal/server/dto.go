package server

import (
	"agencyops/internal/domain"
	"agencyops/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	ClientID string `json:"client_id,omitempty"`
}

type BatchMarginsRequest struct {
	ProjectIDs []string `json:"project_ids" minItems:"1"`
}

type CreateDocumentRequest struct {
	Kind        string   `json:"kind" enum:"quote,invoice,credit-note"`
	Status      string   `json:"status,omitempty" enum:"draft,sent,approved,rejected"`
	Number      string   `json:"number,omitempty"`
	NetAmount   float64  `json:"net_amount"`
	VATPercent  float64  `json:"vat_percent,omitempty"`
	GrossAmount *float64 `json:"gross_amount,omitempty"`
	IssueDate   string   `json:"issue_date,omitempty" format:"date"`
}

type UpdateDocumentRequest struct {
	ProjectID   *string  `json:"project_id,omitempty"`
	Kind        *string  `json:"kind,omitempty" enum:"quote,invoice,credit-note"`
	Status      *string  `json:"status,omitempty" enum:"draft,sent,approved,rejected"`
	Number      *string  `json:"number,omitempty"`
	NetAmount   *float64 `json:"net_amount,omitempty"`
	VATPercent  *float64 `json:"vat_percent,omitempty"`
	GrossAmount *float64 `json:"gross_amount,omitempty"`
	IssueDate   *string  `json:"issue_date,omitempty" format:"date"`
}

// Response payloads

type ProjectResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ClientID    *string `json:"client_id,omitempty"`
	Status      string  `json:"status"`
	BudgetTotal float64 `json:"budget_total"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// TaskVarianceResponse carries applicable=false when the task lacks an estimate.
type TaskVarianceResponse struct {
	Applicable bool                 `json:"applicable"`
	Variance   *domain.TaskVariance `json:"variance,omitempty"`
}

type BudgetSyncResponse struct {
	ProjectID   string  `json:"project_id"`
	BudgetTotal float64 `json:"budget_total"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func documentCreateOptions(projectID, actorID string, req CreateDocumentRequest) engine.DocumentCreateOptions {
	return engine.DocumentCreateOptions{
		ProjectID:   projectID,
		Kind:        domain.DocumentKind(req.Kind),
		Status:      domain.DocumentStatus(req.Status),
		Number:      req.Number,
		NetAmount:   req.NetAmount,
		VATPercent:  req.VATPercent,
		GrossAmount: req.GrossAmount,
		IssueDate:   req.IssueDate,
		ActorID:     actorID,
	}
}

func documentUpdateOptions(actorID string, req UpdateDocumentRequest) engine.DocumentUpdateOptions {
	opts := engine.DocumentUpdateOptions{
		ProjectID:   req.ProjectID,
		Number:      req.Number,
		NetAmount:   req.NetAmount,
		VATPercent:  req.VATPercent,
		GrossAmount: req.GrossAmount,
		IssueDate:   req.IssueDate,
		ActorID:     actorID,
	}
	if req.Kind != nil {
		k := domain.DocumentKind(*req.Kind)
		opts.Kind = &k
	}
	if req.Status != nil {
		s := domain.DocumentStatus(*req.Status)
		opts.Status = &s
	}
	return opts
}
