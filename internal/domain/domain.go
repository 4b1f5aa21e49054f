package domain

type Client struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ClientID    *string `json:"client_id,omitempty"`
	Status      string  `json:"status" enum:"active,paused,archived"`
	BudgetTotal float64 `json:"budget_total"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Service struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SeniorityLevel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Person is the rate source for tracked time. Rates are hourly and read at
// calculation time, so changing them re-prices past entries.
type Person struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	BillableRate float64 `json:"billable_rate"`
	CostRate     float64 `json:"cost_rate"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Title          string   `json:"title"`
	ServiceID      *string  `json:"service_id,omitempty"`
	SeniorityID    *string  `json:"seniority_id,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	EstimatedRate  *float64 `json:"estimated_rate,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

// Estimated reports whether the task carries both estimation fields.
func (t Task) Estimated() bool {
	return t.EstimatedHours != nil && t.EstimatedRate != nil
}

// TrackedTask is a service-tracked task joined with its service and seniority names.
type TrackedTask struct {
	Task
	ServiceName   string `json:"service_name,omitempty"`
	SeniorityName string `json:"seniority_name,omitempty"`
}

type Cost struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	IsEstimated bool    `json:"is_estimated"`
	IncurredOn  string  `json:"incurred_on,omitempty" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type TimeEntry struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	TaskID          *string `json:"task_id,omitempty"`
	PersonID        string  `json:"person_id"`
	StartedAt       string  `json:"started_at" format:"date-time"`
	EndedAt         *string `json:"ended_at,omitempty" format:"date-time"`
	DurationSeconds int64   `json:"duration_seconds"`
	Billable        bool    `json:"billable"`
	Note            string  `json:"note,omitempty"`
}

// Completed reports whether the entry has been stopped. Running entries are
// excluded from every calculation.
func (e TimeEntry) Completed() bool {
	return e.EndedAt != nil && *e.EndedAt != ""
}

// RatedTimeEntry is a time entry joined with its person's current rates.
type RatedTimeEntry struct {
	TimeEntry
	BillableRate float64 `json:"billable_rate"`
	CostRate     float64 `json:"cost_rate"`
}

type DocumentKind string

const (
	DocumentQuote      DocumentKind = "quote"
	DocumentInvoice    DocumentKind = "invoice"
	DocumentCreditNote DocumentKind = "credit-note"
)

type DocumentStatus string

const (
	DocumentDraft    DocumentStatus = "draft"
	DocumentSent     DocumentStatus = "sent"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// RevenueDocument is a quote, invoice or credit note. NetAmount is
// authoritative; GrossAmount is maintained by whoever writes the document.
type RevenueDocument struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Kind        DocumentKind   `json:"kind" enum:"quote,invoice,credit-note"`
	Status      DocumentStatus `json:"status" enum:"draft,sent,approved,rejected"`
	Number      string         `json:"number,omitempty"`
	NetAmount   float64        `json:"net_amount"`
	VATPercent  float64        `json:"vat_percent"`
	GrossAmount float64        `json:"gross_amount"`
	IssueDate   string         `json:"issue_date,omitempty" format:"date"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
}

// RevenueBearing reports whether the document counts toward project revenue.
func (d RevenueDocument) RevenueBearing() bool {
	return d.Kind == DocumentQuote && d.Status == DocumentApproved
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
