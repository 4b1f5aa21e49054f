package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/engine"
	"agencyops/internal/logging"
	"agencyops/internal/migrate"
	agencysdk "agencyops/sdk/go"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logging.Discard()
	e := engine.New(conn, config.Default(), log)
	ctx := context.Background()
	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: "acme", Name: "Acme site"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth, Log: log})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestMarginFlowThroughSDK(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	client := agencysdk.New(srv.URL)
	client.ActorID = "finance"

	amount := 10000.0
	doc, err := client.CreateDocument(ctx, "acme", agencysdk.DocumentInput{Kind: "quote", Status: "approved", NetAmount: &amount})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if _, err := srv.Engine.AddCost(ctx, engine.CostCreateOptions{ProjectID: "acme", Amount: 1500}); err != nil {
		t.Fatalf("add cost: %v", err)
	}
	person, err := srv.Engine.AddPerson(ctx, "", "Ana", 50, 20)
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	if _, err := srv.Engine.LogTime(ctx, engine.TimeEntryOptions{ProjectID: "acme", PersonID: person.ID, Duration: 2 * time.Hour, Billable: true}); err != nil {
		t.Fatalf("log time: %v", err)
	}

	m, err := client.Margin(ctx, "acme")
	if err != nil {
		t.Fatalf("margin: %v", err)
	}
	if m.MarginPercentage != 84 || m.Status != "excellent" || m.Costs.Total != 1600 {
		t.Fatalf("unexpected margin: %+v", m)
	}

	budget, err := client.SyncBudget(ctx, "acme")
	if err != nil {
		t.Fatalf("sync budget: %v", err)
	}
	if budget != 10000 {
		t.Fatalf("expected budget 10000, got %v", budget)
	}

	if _, err := client.UpdateDocument(ctx, doc.ID, agencysdk.DocumentInput{Status: "draft"}); err != nil {
		t.Fatalf("update document: %v", err)
	}
	p, err := srv.Engine.Repo.GetProject(ctx, "acme")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.BudgetTotal != 0 {
		t.Fatalf("expected budget cleared once the quote is a draft, got %v", p.BudgetTotal)
	}

	evts, err := srv.Engine.Repo.LatestEvents(ctx, 1, "acme", "", "document", doc.ID)
	if err != nil || len(evts) != 1 || evts[0].ActorID != "finance" {
		t.Fatalf("expected event attributed to finance, got %+v %v", evts, err)
	}

	if err := client.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	err = client.DeleteDocument(ctx, doc.ID)
	var apiErr *agencysdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("expected not_found envelope, got %v", err)
	}
}

func TestBatchMarginsAndBreakdown(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	client := agencysdk.New(srv.URL)

	res, err := client.Margins(ctx, []string{"acme", "missing"})
	if err != nil {
		t.Fatalf("margins: %v", err)
	}
	if len(res) != 2 || res["acme"].Status != "poor" {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	// a missing project aggregates to zero rather than failing
	if res["missing"].Status != "poor" {
		t.Fatalf("expected zero margin for unknown id, got %+v", res["missing"])
	}

	rows, err := client.ServiceBreakdown(ctx, "acme")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
	if _, err := client.ServiceBreakdown(ctx, "missing"); err == nil {
		t.Fatalf("expected 404 for unknown project")
	}
}

func TestTaskVarianceEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	hours, rate := 10.0, 80.0
	estimated, err := srv.Engine.AddTask(ctx, engine.TaskCreateOptions{ProjectID: "acme", Title: "Design", EstimatedHours: &hours, EstimatedRate: &rate})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	loose, err := srv.Engine.AddTask(ctx, engine.TaskCreateOptions{ProjectID: "acme", Title: "Support"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	client := agencysdk.New(srv.URL)

	v, err := client.TaskVariance(ctx, estimated.ID)
	if err != nil || v == nil {
		t.Fatalf("variance: %v %v", v, err)
	}
	if v.PlannedValue != 800 || v.Status != "under_budget" {
		t.Fatalf("unexpected variance: %+v", v)
	}
	v, err = client.TaskVariance(ctx, loose.ID)
	if err != nil || v != nil {
		t.Fatalf("expected not applicable, got %+v %v", v, err)
	}

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/nope/variance", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/documents", map[string]any{
		"kind":        "quote",
		"net_amount":  100,
		"vat_percent": -5,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "bad_request" || envelope.Error.Details["field"] != "vat_percent" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/ghost/documents", map[string]any{
		"kind":       "quote",
		"net_amount": 100,
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "s3cret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/acme/margin", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/acme/margin", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "controller",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	client := agencysdk.New(srv.URL)
	client.BearerToken = token
	amount := 500.0
	doc, err := client.CreateDocument(context.Background(), "acme", agencysdk.DocumentInput{Kind: "quote", Status: "approved", NetAmount: &amount})
	if err != nil {
		t.Fatalf("create document with token: %v", err)
	}
	evts, err := srv.Engine.Repo.LatestEvents(context.Background(), 1, "acme", "", "document", doc.ID)
	if err != nil || len(evts) != 1 || evts[0].ActorID != "controller" {
		t.Fatalf("expected event attributed to token subject, got %+v %v", evts, err)
	}
}
