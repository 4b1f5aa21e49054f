package agencysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal client for the agency analytics HTTP API.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type CostBreakdown struct {
	Direct    float64 `json:"direct"`
	TimeValue float64 `json:"time_value"`
	Total     float64 `json:"total"`
}

// ProjectMargin is the full margin report of one project.
type ProjectMargin struct {
	ProjectID        string        `json:"project_id"`
	Revenue          float64       `json:"revenue"`
	Costs            CostBreakdown `json:"costs"`
	Profit           float64       `json:"profit"`
	MarginPercentage float64       `json:"margin_percentage"`
	Status           string        `json:"status"`
	BillableHours    float64       `json:"billable_hours"`
}

// BatchMargin is one entry of a batch margin result. Status "unknown" marks a
// project that could not be computed.
type BatchMargin struct {
	Profit           float64 `json:"profit"`
	MarginPercentage float64 `json:"margin_percentage"`
	Status           string  `json:"status"`
}

type TaskVariance struct {
	TaskID               string    `json:"task_id"`
	ProjectID            string    `json:"project_id"`
	Title                string    `json:"title"`
	PlannedHours         float64   `json:"planned_hours"`
	PlannedRate          float64   `json:"planned_rate"`
	PlannedValue         float64   `json:"planned_value"`
	ActualHours          float64   `json:"actual_hours"`
	ActualValue          float64   `json:"actual_value"`
	RatesUsed            []float64 `json:"rates_used"`
	HoursVariance        float64   `json:"hours_variance"`
	HoursVariancePercent float64   `json:"hours_variance_percent"`
	ValueVariance        float64   `json:"value_variance"`
	ValueVariancePercent float64   `json:"value_variance_percent"`
	Status               string    `json:"status"`
}

type ServiceBreakdownRow struct {
	ServiceID            string  `json:"service_id"`
	ServiceName          string  `json:"service_name"`
	SeniorityID          *string `json:"seniority_id"` // nil when the tasks have no seniority level
	SeniorityName        string  `json:"seniority_name"`
	TaskCount            int     `json:"task_count"`
	PlannedHours         float64 `json:"planned_hours"`
	PlannedValue         float64 `json:"planned_value"`
	ActualHours          float64 `json:"actual_hours"`
	ActualValue          float64 `json:"actual_value"`
	HoursVariance        float64 `json:"hours_variance"`
	ValueVariance        float64 `json:"value_variance"`
	ValueVariancePercent float64 `json:"value_variance_percent"`
	Status               string  `json:"status"`
}

type Document struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Number      string  `json:"number,omitempty"`
	NetAmount   float64 `json:"net_amount"`
	VATPercent  float64 `json:"vat_percent"`
	GrossAmount float64 `json:"gross_amount"`
	IssueDate   string  `json:"issue_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// DocumentInput creates a document; as a patch, zero-valued fields are omitted.
type DocumentInput struct {
	ProjectID   string   `json:"project_id,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Status      string   `json:"status,omitempty"`
	Number      string   `json:"number,omitempty"`
	NetAmount   *float64 `json:"net_amount,omitempty"`
	VATPercent  *float64 `json:"vat_percent,omitempty"`
	GrossAmount *float64 `json:"gross_amount,omitempty"`
	IssueDate   string   `json:"issue_date,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Margin(ctx context.Context, projectID string) (ProjectMargin, error) {
	var resp ProjectMargin
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "margin"), nil, &resp)
	return resp, err
}

func (c *Client) Margins(ctx context.Context, projectIDs []string) (map[string]BatchMargin, error) {
	resp := map[string]BatchMargin{}
	err := c.do(ctx, http.MethodPost, "margins", map[string]any{"project_ids": projectIDs}, &resp)
	return resp, err
}

// TaskVariance returns nil without error when the task has no estimate.
func (c *Client) TaskVariance(ctx context.Context, taskID string) (*TaskVariance, error) {
	var resp struct {
		Applicable bool          `json:"applicable"`
		Variance   *TaskVariance `json:"variance"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/variance", url.PathEscape(taskID)), nil, &resp)
	if err != nil || !resp.Applicable {
		return nil, err
	}
	return resp.Variance, nil
}

func (c *Client) ServiceBreakdown(ctx context.Context, projectID string) ([]ServiceBreakdownRow, error) {
	var resp []ServiceBreakdownRow
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "service-breakdown"), nil, &resp)
	return resp, err
}

func (c *Client) CreateDocument(ctx context.Context, projectID string, in DocumentInput) (Document, error) {
	in.ProjectID = ""
	var resp Document
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "documents"), in, &resp)
	return resp, err
}

func (c *Client) UpdateDocument(ctx context.Context, id string, patch DocumentInput) (Document, error) {
	var resp Document
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("documents/%s", url.PathEscape(id)), patch, &resp)
	return resp, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("documents/%s", url.PathEscape(id)), nil, nil)
}

// SyncBudget recomputes the project's budget and returns the stored total.
func (c *Client) SyncBudget(ctx context.Context, projectID string) (float64, error) {
	var resp struct {
		BudgetTotal float64 `json:"budget_total"`
	}
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "budget/sync"), nil, &resp)
	return resp.BudgetTotal, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
