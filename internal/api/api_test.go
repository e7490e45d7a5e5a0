package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/payments"
	"playas/internal/repository"
	"playas/internal/service"
)

type fakeUsers struct {
	repository.UserRepository
}

func (fakeUsers) GetByEmail(context.Context, string) (*db.User, error) { return nil, nil }

type fakeLots struct {
	repository.LotRepository
	lots []db.Lot
}

func (f *fakeLots) Get(_ context.Context, id int) (*db.Lot, error) {
	for i := range f.lots {
		if f.lots[i].ID == id {
			l := f.lots[i]
			return &l, nil
		}
	}
	return nil, apperrors.NotFound("lots.get", "lot not found")
}

func (f *fakeLots) List(context.Context, repository.LotFilter) ([]db.Lot, error) {
	return f.lots, nil
}

type fakeRates struct {
	repository.RateRepository
}

func (fakeRates) List(_ context.Context, lotID int, _ *time.Time) ([]db.Rate, error) {
	return []db.Rate{{ID: 1, LotID: lotID, Service: db.ServiceHour, VehicleClass: db.ClassCar, Price: decimal.NewFromInt(100)}}, nil
}

type testServer struct {
	handler http.Handler
	issuer  *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	lots := &fakeLots{lots: []db.Lot{{ID: 1, Name: "Centro", Active: true, PaymentMethods: []string{db.MethodCash}}}}
	access := service.NewAccess(lots, nil)
	h := Handlers{
		Auth:          NewAuthHandler(service.NewAuthService(fakeUsers{}, issuer)),
		Lots:          NewLotHandler(service.NewLotService(lots, fakeUsers{}, access), service.NewRateService(fakeRates{}, access), time.UTC),
		Spaces:        &SpaceHandler{},
		Drivers:       &DriverHandler{},
		Occupancies:   &OccupancyHandler{},
		Payments:      NewPaymentHandler(service.NewPaymentService(nil, access, payments.Disabled{}, nil), time.UTC),
		Subscriptions: &SubscriptionHandler{},
		Shifts:        &ShiftHandler{},
		Ratings:       &RatingHandler{},
		Dashboard:     NewDashboardHandler(nil, nil, time.UTC),
	}
	return &testServer{
		handler: NewRouter(h, RouterOptions{Issuer: issuer, PromPath: "/metrics"}),
		issuer:  issuer,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, user *db.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token, err := s.issuer.Issue(user)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

var driverUser = &db.User{ID: 5, Email: "driver@example.com", Role: db.RoleDriver}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"health", "/healthz", http.StatusOK, `"status":"ok"`},
		{"lots", "/api/lots", http.StatusOK, `"name":"Centro"`},
		{"lot", "/api/lots/1", http.StatusOK, `"payment_methods":["cash"]`},
		{"missing lot", "/api/lots/9", http.StatusNotFound, `"error":"lot not found"`},
		{"rates", "/api/lots/1/rates", http.StatusOK, `"price":"100"`},
		{"bad rates date", "/api/lots/1/rates?at=yesterday", http.StatusBadRequest, `"error":"invalid at"`},
		{"metrics", "/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.want != "" && !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestAuthAndRoles(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   *db.User
		status int
	}{
		{"me without token", http.MethodGet, "/api/me", nil, http.StatusUnauthorized},
		{"dashboard page without token", http.MethodGet, "/lots/1/dashboard", nil, http.StatusUnauthorized},
		{"driver creating lot", http.MethodPost, "/api/lots", driverUser, http.StatusForbidden},
		{"driver on overview", http.MethodGet, "/api/dashboard", driverUser, http.StatusForbidden},
		{"driver checking out", http.MethodPost, "/api/checkout", driverUser, http.StatusForbidden},
		{"driver refunding", http.MethodPost, "/api/payments/3/refund", driverUser, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "{}", tt.user)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestLoginValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"nope","password":""}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Fields["email"] != "email" || body.Fields["password"] != "required" {
		t.Errorf("fields = %v", body.Fields)
	}

	rec = s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"x","extra":1}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"secret123"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rec.Code)
	}
}

func TestStripeWebhookWithoutGateway(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryTime(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)
	tests := []struct {
		raw     string
		want    *time.Time
		wantErr bool
	}{
		{raw: ""},
		{raw: "2026-03-10T12:00:00Z", want: ptr(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))},
		{raw: "2026-03-10", want: ptr(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))},
		{raw: "10/03/2026", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?from="+tt.raw, nil)
			got, err := queryTime(r, "from", loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil && !tt.wantErr {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDashboardPageTemplate(t *testing.T) {
	h := NewDashboardHandler(nil, nil, time.UTC)
	amount := decimal.RequireFromString("350")
	d := &service.Dashboard{
		LotID:       1,
		LotName:     "Centro <Norte>",
		GeneratedAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		Spaces:      service.SpaceSummary{Total: 3, Free: 1, Occupied: 2, OccupancyPct: 66.7},
		Active: []service.DashboardStay{
			{Ticket: "AAAA1111", Plate: "AB123CD", SpaceCode: "A01", Amount: &amount},
			{Ticket: "BBBB2222", Plate: "AC456EF", SpaceCode: "A02", Subscriber: true},
		},
		RevenueToday: map[string]decimal.Decimal{db.MethodCash: decimal.NewFromInt(550)},
		RevenueTotal: decimal.NewFromInt(550),
	}
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, d); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Centro &lt;Norte&gt;", "350.00", "abono", "66.7%", "550.00", "10/03 15:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func ptr(t time.Time) *time.Time { return &t }
