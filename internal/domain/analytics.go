package domain

type MarginStatus string

const (
	MarginExcellent  MarginStatus = "excellent"
	MarginGood       MarginStatus = "good"
	MarginAcceptable MarginStatus = "acceptable"
	MarginPoor       MarginStatus = "poor"
	MarginNegative   MarginStatus = "negative"
	// MarginUnknown marks a project whose calculation failed inside a batch.
	MarginUnknown MarginStatus = "unknown"
)

type VarianceStatus string

const (
	UnderBudget VarianceStatus = "under_budget"
	OnBudget    VarianceStatus = "on_budget"
	OverBudget  VarianceStatus = "over_budget"
)

// NoSeniority labels the breakdown group of service-tracked tasks without a
// seniority level. Such rows carry a nil SeniorityID, so a level whose id is
// literally "none" stays a separate group.
const NoSeniority = "none"

type CostBreakdown struct {
	Direct    float64 `json:"direct"`
	TimeValue float64 `json:"time_value"`
	Total     float64 `json:"total"`
}

type ProjectMargin struct {
	ProjectID        string        `json:"project_id"`
	Revenue          float64       `json:"revenue"`
	Costs            CostBreakdown `json:"costs"`
	Profit           float64       `json:"profit"`
	MarginPercentage float64       `json:"margin_percentage"`
	Status           MarginStatus  `json:"status" enum:"excellent,good,acceptable,poor,negative"`
	BillableHours    float64       `json:"billable_hours"`
}

// BatchMargin is the reduced margin used by list views.
type BatchMargin struct {
	Profit           float64      `json:"profit"`
	MarginPercentage float64      `json:"margin_percentage"`
	Status           MarginStatus `json:"status" enum:"excellent,good,acceptable,poor,negative,unknown"`
}

type TaskVariance struct {
	TaskID               string         `json:"task_id"`
	ProjectID            string         `json:"project_id"`
	Title                string         `json:"title"`
	PlannedHours         float64        `json:"planned_hours"`
	PlannedRate          float64        `json:"planned_rate"`
	PlannedValue         float64        `json:"planned_value"`
	ActualHours          float64        `json:"actual_hours"`
	ActualValue          float64        `json:"actual_value"`
	RatesUsed            []float64      `json:"rates_used"`
	HoursVariance        float64        `json:"hours_variance"`
	HoursVariancePercent float64        `json:"hours_variance_percent"`
	ValueVariance        float64        `json:"value_variance"`
	ValueVariancePercent float64        `json:"value_variance_percent"`
	Status               VarianceStatus `json:"status" enum:"under_budget,on_budget,over_budget"`
}

type ServiceBreakdownRow struct {
	ServiceID            string         `json:"service_id"`
	ServiceName          string         `json:"service_name,omitempty"`
	SeniorityID          *string        `json:"seniority_id"`
	SeniorityName        string         `json:"seniority_name,omitempty"`
	TaskCount            int            `json:"task_count"`
	PlannedHours         float64        `json:"planned_hours"`
	PlannedValue         float64        `json:"planned_value"`
	ActualHours          float64        `json:"actual_hours"`
	ActualValue          float64        `json:"actual_value"`
	HoursVariance        float64        `json:"hours_variance"`
	ValueVariance        float64        `json:"value_variance"`
	ValueVariancePercent float64        `json:"value_variance_percent"`
	Status               VarianceStatus `json:"status" enum:"under_budget,on_budget,over_budget"`
}
