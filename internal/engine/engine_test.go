package engine_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/domain"
	"agencyops/internal/engine"
	"agencyops/internal/events"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Hook   *logtest.Hook
	Person domain.Person
}

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	eng := engine.New(conn, config.Default(), log)
	eng.Now = func() time.Time { return epoch }
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Name: "Website"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	person, err := eng.AddPerson(ctx, "ana", "Ana", 50, 30)
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Hook: hook, Person: person}
}

func (env testEnv) logTime(t *testing.T, projectID, taskID, personID string, d time.Duration, billable bool) {
	t.Helper()
	_, err := env.Engine.LogTime(env.Ctx, engine.TimeEntryOptions{
		ProjectID: projectID, TaskID: taskID, PersonID: personID, StartedAt: epoch, Duration: d, Billable: billable,
	})
	if err != nil {
		t.Fatalf("log time: %v", err)
	}
}

func (env testEnv) approvedQuote(t *testing.T, projectID string, net float64) domain.RevenueDocument {
	t.Helper()
	d, err := env.Engine.CreateDocument(env.Ctx, engine.DocumentCreateOptions{
		ProjectID: projectID, Kind: domain.DocumentQuote, Status: domain.DocumentApproved, NetAmount: net, VATPercent: 20,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return d
}

func (env testEnv) task(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	task, err := env.Engine.AddTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	return task
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ptr[T any](v T) *T { return &v }

func TestMarginScenario(t *testing.T) {
	env := newTestEnv(t)
	env.approvedQuote(t, "proj-1", 10000)
	if _, err := env.Engine.AddCost(env.Ctx, engine.CostCreateOptions{ProjectID: "proj-1", Amount: 1500, Category: "software"}); err != nil {
		t.Fatalf("add cost: %v", err)
	}
	env.logTime(t, "proj-1", "", env.Person.ID, 120*time.Minute, true)

	m, err := env.Engine.CalculateMargin(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("margin: %v", err)
	}
	if !approx(m.Revenue, 10000) || !approx(m.Costs.Direct, 1500) || !approx(m.Costs.TimeValue, 100) || !approx(m.Costs.Total, 1600) {
		t.Fatalf("unexpected amounts: %+v", m)
	}
	if !approx(m.Profit, 8400) || !approx(m.MarginPercentage, 84) {
		t.Fatalf("unexpected profit/margin: %+v", m)
	}
	if m.Status != domain.MarginExcellent {
		t.Fatalf("expected excellent, got %s", m.Status)
	}
	if !approx(m.BillableHours, 2) {
		t.Fatalf("expected 2 billable hours, got %v", m.BillableHours)
	}
}

func TestMarginEmptyProject(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CalculateMargin(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("margin: %v", err)
	}
	if m.Revenue != 0 || m.Costs.Total != 0 || m.Profit != 0 || m.MarginPercentage != 0 {
		t.Fatalf("expected zeros, got %+v", m)
	}
	if m.Status != domain.MarginPoor {
		t.Fatalf("expected poor for empty project, got %s", m.Status)
	}
}

func TestMarginWithoutRevenue(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddCost(env.Ctx, engine.CostCreateOptions{ProjectID: "proj-1", Amount: 300}); err != nil {
		t.Fatalf("add cost: %v", err)
	}
	m, err := env.Engine.CalculateMargin(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("margin: %v", err)
	}
	if !approx(m.Profit, -300) {
		t.Fatalf("expected profit -300, got %v", m.Profit)
	}
	if m.MarginPercentage != 0 || m.Status != domain.MarginPoor {
		t.Fatalf("expected margin 0 and poor without revenue, got %v %s", m.MarginPercentage, m.Status)
	}
}

func TestRevenueCountsOnlyApprovedQuotes(t *testing.T) {
	env := newTestEnv(t)
	env.approvedQuote(t, "proj-1", 1000)
	others := []engine.DocumentCreateOptions{
		{ProjectID: "proj-1", Kind: domain.DocumentQuote, Status: domain.DocumentDraft, NetAmount: 500},
		{ProjectID: "proj-1", Kind: domain.DocumentQuote, Status: domain.DocumentRejected, NetAmount: 700},
		{ProjectID: "proj-1", Kind: domain.DocumentInvoice, Status: domain.DocumentApproved, NetAmount: 900},
	}
	for _, opts := range others {
		if _, err := env.Engine.CreateDocument(env.Ctx, opts); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}
	revenue, err := env.Engine.Revenue(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if !approx(revenue, 1000) {
		t.Fatalf("expected revenue 1000, got %v", revenue)
	}
}

func TestTimeValueSkipsRunningAndNonBillable(t *testing.T) {
	env := newTestEnv(t)
	env.logTime(t, "proj-1", "", env.Person.ID, time.Hour, true)
	env.logTime(t, "proj-1", "", env.Person.ID, 3*time.Hour, false)
	if _, err := env.Engine.StartTimer(env.Ctx, engine.TimeEntryOptions{ProjectID: "proj-1", PersonID: env.Person.ID, Billable: true}); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	tv, err := env.Engine.TimeValue(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("time value: %v", err)
	}
	if !approx(tv.Hours, 1) || !approx(tv.Value, 50) {
		t.Fatalf("expected 1h worth 50, got %+v", tv)
	}
}

func TestStopTimerCompletesEntry(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.Engine.StartTimer(env.Ctx, engine.TimeEntryOptions{ProjectID: "proj-1", PersonID: env.Person.ID, Billable: true})
	if err != nil {
		t.Fatalf("start timer: %v", err)
	}
	env.Engine.Now = func() time.Time { return epoch.Add(90 * time.Minute) }
	stopped, err := env.Engine.StopTimer(env.Ctx, entry.ID)
	if err != nil {
		t.Fatalf("stop timer: %v", err)
	}
	if stopped.DurationSeconds != 5400 || !stopped.Completed() {
		t.Fatalf("unexpected stopped entry: %+v", stopped)
	}
	tv, err := env.Engine.TimeValue(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("time value: %v", err)
	}
	if !approx(tv.Value, 75) {
		t.Fatalf("expected 75, got %v", tv.Value)
	}
	if _, err := env.Engine.StopTimer(env.Ctx, entry.ID); err == nil {
		t.Fatalf("expected error stopping a stopped entry")
	}
}

func TestRateChangeRepricesPastEntries(t *testing.T) {
	env := newTestEnv(t)
	env.logTime(t, "proj-1", "", env.Person.ID, 2*time.Hour, true)
	if _, err := env.Engine.SetPersonRates(env.Ctx, env.Person.ID, ptr(80.0), nil); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	tv, err := env.Engine.TimeValue(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("time value: %v", err)
	}
	if !approx(tv.Value, 160) {
		t.Fatalf("expected entries valued at the new rate, got %v", tv.Value)
	}
}

type flatRate struct{ rate decimal.Decimal }

func (f flatRate) BillableRate(context.Context, domain.RatedTimeEntry) (decimal.Decimal, error) {
	return f.rate, nil
}

func TestCustomRateResolver(t *testing.T) {
	env := newTestEnv(t)
	env.logTime(t, "proj-1", "", env.Person.ID, 30*time.Minute, true)
	env.Engine.Rates = flatRate{rate: decimal.NewFromInt(120)}
	tv, err := env.Engine.TimeValue(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("time value: %v", err)
	}
	if !approx(tv.Value, 60) {
		t.Fatalf("expected resolver rate to apply, got %v", tv.Value)
	}
}

func TestTaskVarianceScenario(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetPersonRates(env.Ctx, env.Person.ID, ptr(80.0), nil); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	task := env.task(t, engine.TaskCreateOptions{Title: "Design", EstimatedHours: ptr(10.0), EstimatedRate: ptr(80.0)})
	env.logTime(t, "proj-1", task.ID, env.Person.ID, 7*time.Hour, true)
	env.logTime(t, "proj-1", task.ID, env.Person.ID, 5*time.Hour, true)

	v, err := env.Engine.CalculateTaskVariance(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("variance: %v", err)
	}
	if v == nil {
		t.Fatalf("expected variance for estimated task")
	}
	if !approx(v.PlannedValue, 800) || !approx(v.ActualHours, 12) || !approx(v.ActualValue, 960) {
		t.Fatalf("unexpected actuals: %+v", v)
	}
	if !approx(v.HoursVariance, 2) || !approx(v.HoursVariancePercent, 20) {
		t.Fatalf("unexpected hours variance: %+v", v)
	}
	if !approx(v.ValueVariance, 160) || !approx(v.ValueVariancePercent, 20) {
		t.Fatalf("unexpected value variance: %+v", v)
	}
	if v.Status != domain.OverBudget {
		t.Fatalf("expected over_budget, got %s", v.Status)
	}
	if len(v.RatesUsed) != 1 || v.RatesUsed[0] != 80 {
		t.Fatalf("expected single rate 80, got %v", v.RatesUsed)
	}
}

func TestTaskVarianceNotApplicable(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{Title: "Unestimated", EstimatedHours: ptr(4.0)})
	v, err := env.Engine.CalculateTaskVariance(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("variance: %v", err)
	}
	if v != nil {
		t.Fatalf("expected no variance without estimated rate, got %+v", v)
	}
	if _, err := env.Engine.CalculateTaskVariance(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTaskVarianceCountsNonBillableHoursOnly(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{Title: "Build", EstimatedHours: ptr(4.0), EstimatedRate: ptr(50.0)})
	env.logTime(t, "proj-1", task.ID, env.Person.ID, 2*time.Hour, true)
	env.logTime(t, "proj-1", task.ID, env.Person.ID, 2*time.Hour, false)

	v, err := env.Engine.CalculateTaskVariance(env.Ctx, task.ID)
	if err != nil || v == nil {
		t.Fatalf("variance: %v %v", v, err)
	}
	if !approx(v.ActualHours, 4) {
		t.Fatalf("expected non-billable hours counted, got %v", v.ActualHours)
	}
	if !approx(v.ActualValue, 100) {
		t.Fatalf("expected only billable value, got %v", v.ActualValue)
	}
	if !approx(v.ValueVariancePercent, -50) || v.Status != domain.UnderBudget {
		t.Fatalf("expected -50%% under_budget, got %v %s", v.ValueVariancePercent, v.Status)
	}
}

func TestServiceBreakdownGroupsAndOrders(t *testing.T) {
	env := newTestEnv(t)
	design, err := env.Engine.AddService(env.Ctx, "design", "Design")
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	dev, err := env.Engine.AddService(env.Ctx, "dev", "Development")
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	senior, err := env.Engine.AddSeniorityLevel(env.Ctx, "senior", "Senior")
	if err != nil {
		t.Fatalf("add seniority: %v", err)
	}
	literalNone, err := env.Engine.AddSeniorityLevel(env.Ctx, domain.NoSeniority, "Literal none")
	if err != nil {
		t.Fatalf("add seniority: %v", err)
	}

	a := env.task(t, engine.TaskCreateOptions{Title: "a", ServiceID: dev.ID, SeniorityID: senior.ID, EstimatedHours: ptr(10.0), EstimatedRate: ptr(100.0)})
	env.task(t, engine.TaskCreateOptions{Title: "b", ServiceID: dev.ID, SeniorityID: senior.ID, EstimatedHours: ptr(5.0), EstimatedRate: ptr(100.0)})
	env.task(t, engine.TaskCreateOptions{Title: "c", ServiceID: design.ID, EstimatedHours: ptr(2.0), EstimatedRate: ptr(60.0)})
	env.task(t, engine.TaskCreateOptions{Title: "d", ServiceID: design.ID, SeniorityID: literalNone.ID, EstimatedHours: ptr(2.0), EstimatedRate: ptr(60.0)})
	env.task(t, engine.TaskCreateOptions{Title: "unestimated", ServiceID: dev.ID, EstimatedHours: ptr(3.0)})
	env.task(t, engine.TaskCreateOptions{Title: "no service", EstimatedHours: ptr(50.0), EstimatedRate: ptr(100.0)})
	env.logTime(t, "proj-1", a.ID, env.Person.ID, 12*time.Hour, true)

	rows, err := env.Engine.ServiceBreakdown(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 groups, got %d: %+v", len(rows), rows)
	}
	top := rows[0]
	if top.ServiceID != "dev" || top.SeniorityID == nil || *top.SeniorityID != "senior" || top.TaskCount != 2 {
		t.Fatalf("unexpected top row: %+v", top)
	}
	if !approx(top.PlannedValue, 1500) || !approx(top.ActualValue, 600) || !approx(top.ActualHours, 12) {
		t.Fatalf("unexpected top amounts: %+v", top)
	}
	if top.Status != domain.UnderBudget {
		t.Fatalf("expected under_budget, got %s", top.Status)
	}
	if top.ServiceName != "Development" || top.SeniorityName != "Senior" {
		t.Fatalf("expected joined names, got %+v", top)
	}
	// equal planned value: unassigned seniority sorts before the literal "none" level
	if rows[1].SeniorityID != nil || rows[1].TaskCount != 1 {
		t.Fatalf("expected unassigned group second, got %+v", rows[1])
	}
	if rows[2].SeniorityID == nil || *rows[2].SeniorityID != domain.NoSeniority || rows[2].TaskCount != 1 {
		t.Fatalf("expected literal none level last, got %+v", rows[2])
	}
}

func TestServiceBreakdownEmpty(t *testing.T) {
	env := newTestEnv(t)
	rows, err := env.Engine.ServiceBreakdown(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil rows, got %#v", rows)
	}
}

func TestDocumentMutationsSyncBudget(t *testing.T) {
	env := newTestEnv(t)
	quote := env.approvedQuote(t, "proj-1", 2500)
	if !approx(quote.GrossAmount, 3000) {
		t.Fatalf("expected gross 3000, got %v", quote.GrossAmount)
	}
	p, err := env.Engine.Repo.GetProject(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if !approx(p.BudgetTotal, 2500) {
		t.Fatalf("expected budget 2500 after create, got %v", p.BudgetTotal)
	}

	if _, err := env.Engine.UpdateDocument(env.Ctx, quote.ID, engine.DocumentUpdateOptions{NetAmount: ptr(4000.0)}); err != nil {
		t.Fatalf("update document: %v", err)
	}
	p, _ = env.Engine.Repo.GetProject(env.Ctx, "proj-1")
	if !approx(p.BudgetTotal, 4000) {
		t.Fatalf("expected budget 4000 after update, got %v", p.BudgetTotal)
	}

	other, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "Other"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.Engine.UpdateDocument(env.Ctx, quote.ID, engine.DocumentUpdateOptions{ProjectID: &other.ID}); err != nil {
		t.Fatalf("move document: %v", err)
	}
	p, _ = env.Engine.Repo.GetProject(env.Ctx, "proj-1")
	moved, _ := env.Engine.Repo.GetProject(env.Ctx, other.ID)
	if p.BudgetTotal != 0 || !approx(moved.BudgetTotal, 4000) {
		t.Fatalf("expected both projects resynced, got %v and %v", p.BudgetTotal, moved.BudgetTotal)
	}

	if err := env.Engine.DeleteDocument(env.Ctx, quote.ID, "tester"); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	moved, _ = env.Engine.Repo.GetProject(env.Ctx, other.ID)
	if moved.BudgetTotal != 0 {
		t.Fatalf("expected budget reset after delete, got %v", moved.BudgetTotal)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "document", quote.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 4 || evts[0].Type != events.DocumentDeleted || evts[0].ActorID != "tester" {
		t.Fatalf("unexpected document events: %+v", evts)
	}
}

func TestCreateDocumentRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateDocument(env.Ctx, engine.DocumentCreateOptions{ProjectID: "proj-1", Kind: "receipt", NetAmount: 10})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "kind" {
		t.Fatalf("expected kind validation error, got %v", err)
	}
	_, err = env.Engine.CreateDocument(env.Ctx, engine.DocumentCreateOptions{ProjectID: "nope", Kind: domain.DocumentQuote})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}
}

type failingBudgetStore struct {
	repo.Repo
}

func (failingBudgetStore) UpdateProjectBudget(context.Context, string, float64) error {
	return errors.New("store unavailable")
}

func TestBudgetSyncFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Store = failingBudgetStore{Repo: env.Engine.Repo}
	doc := env.approvedQuote(t, "proj-1", 900)
	if doc.ID == "" {
		t.Fatalf("expected document to be created despite sync failure")
	}
	entry := env.Hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["project_id"] != "proj-1" {
		t.Fatalf("expected logged sync failure, got %+v", entry)
	}
	p, _ := env.Engine.Repo.GetProject(env.Ctx, "proj-1")
	if p.BudgetTotal != 0 {
		t.Fatalf("expected budget untouched, got %v", p.BudgetTotal)
	}
}

type flakyStore struct {
	repo.Repo
	failFor string
	calls   *atomic.Int32
}

func (s flakyStore) ListCosts(ctx context.Context, projectID string) ([]domain.Cost, error) {
	s.calls.Add(1)
	if projectID == s.failFor {
		return nil, errors.New("costs table unreachable")
	}
	return s.Repo.ListCosts(ctx, projectID)
}

func TestMarginsBatchIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Analytics.BatchSize = 2
	ids := []string{"proj-1"}
	for _, name := range []string{"b", "c", "d", "e"} {
		p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: name, Name: name})
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		env.approvedQuote(t, p.ID, 1000)
		ids = append(ids, p.ID)
	}
	calls := &atomic.Int32{}
	env.Engine.Store = flakyStore{Repo: env.Engine.Repo, failFor: "c", calls: calls}

	res := env.Engine.CalculateMarginsBatch(env.Ctx, append(ids, "b"))
	if len(res) != 5 {
		t.Fatalf("expected 5 results, got %d", len(res))
	}
	if calls.Load() != 5 {
		t.Fatalf("expected duplicate ids computed once, got %d calls", calls.Load())
	}
	if got := res["c"]; got.Status != domain.MarginUnknown || got.Profit != 0 || got.MarginPercentage != 0 {
		t.Fatalf("expected unknown for failing project, got %+v", got)
	}
	for _, id := range []string{"b", "d", "e"} {
		if got := res[id]; got.Status != domain.MarginExcellent || !approx(got.MarginPercentage, 100) {
			t.Fatalf("project %s: unexpected result %+v", id, got)
		}
	}
	if res["proj-1"].Status != domain.MarginPoor {
		t.Fatalf("expected poor for empty project, got %+v", res["proj-1"])
	}
	warned := false
	for _, e := range env.Hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["project_id"] == "c" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected warning for failing project")
	}
}

func TestMarginsBatchEmpty(t *testing.T) {
	env := newTestEnv(t)
	if res := env.Engine.CalculateMarginsBatch(env.Ctx, nil); len(res) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestSetTaskEstimateTogglesVariance(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{Title: "Copy"})
	if _, err := env.Engine.SetTaskEstimate(env.Ctx, task.ID, ptr(2.0), ptr(40.0)); err != nil {
		t.Fatalf("set estimate: %v", err)
	}
	v, err := env.Engine.CalculateTaskVariance(env.Ctx, task.ID)
	if err != nil || v == nil {
		t.Fatalf("expected variance after estimating, got %+v %v", v, err)
	}
	if !approx(v.PlannedValue, 80) {
		t.Fatalf("expected planned value 80, got %v", v.PlannedValue)
	}
	if _, err := env.Engine.SetTaskEstimate(env.Ctx, task.ID, nil, ptr(40.0)); err != nil {
		t.Fatalf("clear hours: %v", err)
	}
	if v, err := env.Engine.CalculateTaskVariance(env.Ctx, task.ID); err != nil || v != nil {
		t.Fatalf("expected no variance once hours are cleared, got %+v %v", v, err)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.SetTaskEstimate(env.Ctx, task.ID, ptr(-1.0), nil); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProjectUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.UpdateProject(env.Ctx, "proj-1", "Website v2", "paused")
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if p.Name != "Website v2" || p.Status != "paused" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, "proj-1", "", "closed"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
	env.approvedQuote(t, "proj-1", 100)
	if err := env.Engine.DeleteProject(env.Ctx, "proj-1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, "proj-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

var errStoreDown = errors.New("store down")

type brokenReadStore struct {
	repo.Repo
	brokenCosts   bool
	brokenEntries bool
	panicFor      string
}

func (s brokenReadStore) ListCosts(ctx context.Context, projectID string) ([]domain.Cost, error) {
	if s.brokenCosts {
		return nil, errStoreDown
	}
	return s.Repo.ListCosts(ctx, projectID)
}

func (s brokenReadStore) ListTimeEntriesByProject(ctx context.Context, projectID string) ([]domain.RatedTimeEntry, error) {
	if projectID == s.panicFor {
		panic("time entries scan corrupted")
	}
	if s.brokenEntries {
		return nil, errStoreDown
	}
	return s.Repo.ListTimeEntriesByProject(ctx, projectID)
}

func TestMarginFailsWhenAReadFails(t *testing.T) {
	for name, store := range map[string]brokenReadStore{
		"costs":        {brokenCosts: true},
		"time entries": {brokenEntries: true},
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			env.approvedQuote(t, "proj-1", 1000)
			store.Repo = env.Engine.Repo
			env.Engine.Store = store
			m, err := env.Engine.CalculateMargin(env.Ctx, "proj-1")
			if !errors.Is(err, errStoreDown) {
				t.Fatalf("expected wrapped store error, got %v", err)
			}
			if m != (domain.ProjectMargin{}) {
				t.Fatalf("expected no partial result, got %+v", m)
			}
		})
	}
}

func TestMarginsBatchRecoversPanics(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "b", Name: "b"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	env.approvedQuote(t, "proj-1", 1000)
	env.Engine.Store = brokenReadStore{Repo: env.Engine.Repo, panicFor: "b"}

	res := env.Engine.CalculateMarginsBatch(env.Ctx, []string{"proj-1", "b"})
	if got := res["b"]; got.Status != domain.MarginUnknown || got.Profit != 0 {
		t.Fatalf("expected unknown for panicking project, got %+v", got)
	}
	if got := res["proj-1"]; got.Status != domain.MarginExcellent || !approx(got.Profit, 1000) {
		t.Fatalf("expected sibling unaffected, got %+v", got)
	}
	warned := false
	for _, e := range env.Hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["project_id"] == "b" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected warning for panicking project")
	}
}

func TestCreditNoteKind(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateDocument(env.Ctx, engine.DocumentCreateOptions{
		ProjectID: "proj-1", Kind: domain.DocumentCreditNote, Status: domain.DocumentApproved, NetAmount: 300,
	}); err != nil {
		t.Fatalf("create credit note: %v", err)
	}
	revenue, err := env.Engine.Revenue(env.Ctx, "proj-1")
	if err != nil || revenue != 0 {
		t.Fatalf("expected credit notes to add no revenue, got %v %v", revenue, err)
	}
	_, err = env.Engine.CreateDocument(env.Ctx, engine.DocumentCreateOptions{ProjectID: "proj-1", Kind: "credit_note", NetAmount: 10})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "kind" {
		t.Fatalf("expected underscore spelling rejected, got %v", err)
	}
}
