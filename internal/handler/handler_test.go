package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/events"
	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/cache"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/middleware"
	"github.com/aquatrack-hygiene/service-booking/internal/repository"
)

type testServer struct {
	router    *gin.Engine
	gateway   *payment.MockGateway
	accounts  *repository.MemoryAccounts
	addressID uuid.UUID

	customerToken   string
	otherToken      string
	technicianID    uuid.UUID
	technicianToken string
	adminToken      string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	jwtManager := auth.NewJWTManager("handler-test-secret", time.Hour)
	repo := repository.NewMemoryBookingRepository()
	accounts := repository.NewMemoryAccounts()
	gateway := payment.NewMockGateway("handler-secret")
	publisher := events.NewLogPublisher(logger)

	s := &testServer{gateway: gateway, accounts: accounts, addressID: uuid.New(), technicianID: uuid.New()}

	customerID, otherID, adminID := uuid.New(), uuid.New(), uuid.New()
	accounts.AddCustomer(account.Contact{ID: customerID, Name: "Meera", Email: "meera@example.com"})
	accounts.AddCustomer(account.Contact{ID: otherID, Name: "Kiran", Email: "kiran@example.com"})
	accounts.AddTechnician(s.technicianID)
	accounts.AddAdmin(adminID)
	accounts.AddAddress(account.Address{ID: s.addressID, UserID: customerID, Name: "Home", AddressLine: "4 Hill Street"})

	s.customerToken = token(t, jwtManager, customerID, auth.RoleCustomer)
	s.otherToken = token(t, jwtManager, otherID, auth.RoleCustomer)
	s.technicianToken = token(t, jwtManager, s.technicianID, auth.RoleTechnician)
	s.adminToken = token(t, jwtManager, adminID, auth.RoleAdmin)

	bookings := application.NewBookingService(
		repo, accounts, accounts,
		bookingDomain.NewStandardPricingStrategy(),
		gateway, cache.NewLocalLocker(), publisher,
		application.PaymentSettings{}, logger,
	)
	jobs := application.NewJobService(repo, accounts, accounts, publisher, logger)

	s.router = gin.New()
	authMW := []gin.HandlerFunc{middleware.AuthMiddleware(jwtManager), RequireKnownActor(accounts)}
	NewBookingHandler(bookings).RegisterRoutes(&s.router.RouterGroup, authMW...)
	NewFieldHandler(jobs).RegisterRoutes(&s.router.RouterGroup, authMW...)
	NewAdminBookingHandler(bookings).RegisterRoutes(&s.router.RouterGroup, authMW...)
	return s
}

func token(t *testing.T, m *auth.JWTManager, id uuid.UUID, role auth.Role) string {
	t.Helper()
	tok, err := m.GenerateToken(id, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (s *testServer) createBooking(t *testing.T, method string) application.BookingDTO {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/bookings", s.customerToken, map[string]interface{}{
		"address_id":       s.addressID,
		"tank_type":        "underground",
		"tank_capacity":    "2000L",
		"package_type":     "automated",
		"add_disinfection": true,
		"service_date":     "2026-11-02",
		"service_time":     "09:00-11:00",
		"payment_method":   method,
	})
	require.Equal(t, http.StatusCreated, code, "error: %+v", env.Error)
	return decode[application.BookingDTO](t, env)
}

func TestBookingRoutes_CardPaymentFlow(t *testing.T) {
	s := newTestServer(t)
	bk := s.createBooking(t, "card")
	assert.Equal(t, "pending", bk.Status)
	assert.Positive(t, bk.Amount)

	code, env := s.do(t, http.MethodPost, "/api/v1/payments/create-order", s.customerToken, map[string]interface{}{
		"booking_id": bk.ID,
	})
	require.Equal(t, http.StatusOK, code)
	order := decode[application.PaymentOrderDTO](t, env)
	require.NotEmpty(t, order.OrderID)
	assert.Equal(t, bk.Amount, order.Amount)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/verify", s.customerToken, map[string]interface{}{
		"booking_id": bk.ID,
		"order_id":   order.OrderID,
		"payment_id": "pay_abc",
		"signature":  "forged",
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_FAILED", env.Error.Code)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/verify", s.customerToken, map[string]interface{}{
		"booking_id": bk.ID,
		"order_id":   order.OrderID,
		"payment_id": "pay_abc",
		"signature":  s.gateway.SignFor(order.OrderID, "pay_abc"),
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	confirmed := decode[application.BookingDTO](t, env)
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.Equal(t, "completed", confirmed.PaymentStatus)
}

func TestBookingRoutes_AccessControl(t *testing.T) {
	s := newTestServer(t)
	bk := s.createBooking(t, "upi")
	path := "/api/v1/bookings/" + bk.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: path, want: http.StatusUnauthorized},
		{name: "other customer cannot see", method: http.MethodGet, path: path, token: s.otherToken, want: http.StatusNotFound},
		{name: "unassigned technician cannot see", method: http.MethodGet, path: path, token: s.technicianToken, want: http.StatusNotFound},
		{name: "admin sees everything", method: http.MethodGet, path: path, token: s.adminToken, want: http.StatusOK},
		{name: "bad id", method: http.MethodGet, path: "/api/v1/bookings/nope", token: s.customerToken, want: http.StatusBadRequest},
		{name: "technician cannot book", method: http.MethodPost, path: "/api/v1/bookings", token: s.technicianToken, body: map[string]string{}, want: http.StatusForbidden},
		{name: "customer cannot reach admin", method: http.MethodGet, path: "/api/v1/admin/bookings", token: s.customerToken, want: http.StatusForbidden},
		{name: "customer cannot reach field", method: http.MethodGet, path: "/api/v1/field/jobs", token: s.customerToken, want: http.StatusForbidden},
		{name: "missing fields", method: http.MethodPost, path: "/api/v1/bookings", token: s.customerToken, body: map[string]string{"tank_type": "overhead"}, want: http.StatusBadRequest},
		{name: "other customer cannot pay", method: http.MethodPost, path: "/api/v1/payments/create-order", token: s.otherToken, body: map[string]interface{}{"booking_id": bk.ID}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestRequireKnownActor_RejectsUnknownSubject(t *testing.T) {
	s := newTestServer(t)
	ghost := token(t, auth.NewJWTManager("handler-test-secret", time.Hour), uuid.New(), auth.RoleCustomer)

	code, env := s.do(t, http.MethodGet, "/api/v1/bookings", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "account not found", env.Error.Message)
}

func TestAdminAndFieldRoutes_JobLifecycle(t *testing.T) {
	s := newTestServer(t)
	bk := s.createBooking(t, "cod")
	admin := "/api/v1/admin/bookings/" + bk.ID.String()
	field := "/api/v1/field/jobs/" + bk.ID.String()

	// Starting before confirmation is rejected.
	code, _ := s.do(t, http.MethodPut, admin+"/assign", s.adminToken, map[string]interface{}{"technician_id": s.technicianID})
	require.Equal(t, http.StatusOK, code)
	code, env := s.do(t, http.MethodPost, field+"/start", s.technicianToken, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/create-order", s.customerToken, map[string]interface{}{"booking_id": bk.ID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirmed", decode[application.PaymentOrderDTO](t, env).Status)

	code, env = s.do(t, http.MethodGet, "/api/v1/field/jobs", s.technicianToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), env.Meta.Total)

	code, env = s.do(t, http.MethodGet, field, s.technicianToken, nil)
	require.Equal(t, http.StatusOK, code)
	detail := decode[application.JobDetailDTO](t, env)
	require.NotNil(t, detail.Address)
	assert.Equal(t, "4 Hill Street", detail.Address.AddressLine)

	code, env = s.do(t, http.MethodPost, field+"/start", s.technicianToken, nil)
	require.Equal(t, http.StatusOK, code)
	started := decode[application.BookingDTO](t, env)
	assert.Equal(t, "in-progress", started.Status)
	require.NotNil(t, started.Checklist)

	code, env = s.do(t, http.MethodPut, field+"/checklist", s.technicianToken, map[string]interface{}{
		"step_name": "drain", "status": "completed", "notes": "tank emptied",
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	step := decode[application.BookingDTO](t, env).Checklist.Steps[bookingDomain.StepDrain]
	require.NotNil(t, step)
	assert.Equal(t, bookingDomain.StepCompleted, step.Status)

	code, _ = s.do(t, http.MethodPut, field+"/checklist", s.technicianToken, map[string]interface{}{
		"step_name": "polish", "status": "completed",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	// The step is named by step_name; a bare "step" key leaves it empty.
	code, _ = s.do(t, http.MethodPut, field+"/checklist", s.technicianToken, map[string]interface{}{
		"step": "drain", "status": "completed",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPost, field+"/usage", s.technicianToken, map[string]interface{}{
		"chemical":     map[string]interface{}{"name": "chlorine", "quantity": 0.5, "unit": "kg"},
		"water_litres": 300,
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Equal(t, 300, decode[application.BookingDTO](t, env).Checklist.WaterUsageLitres)

	code, env = s.do(t, http.MethodPost, field+"/complete", s.technicianToken, map[string]interface{}{
		"before_photo_urls":  []string{"https://cdn.example.com/b.jpg"},
		"after_photo_urls":   []string{"https://cdn.example.com/a.jpg"},
		"customer_signature": "data:image/png;base64,iVBORw0KGgo=",
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Equal(t, "completed", decode[application.BookingDTO](t, env).Status)

	code, _ = s.do(t, http.MethodDelete, admin, s.adminToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/stats/bookings", s.adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[application.BookingStatsDTO](t, env)
	assert.Equal(t, int64(1), stats.TotalBookings)
	assert.Equal(t, int64(1), stats.ByStatus["completed"])
}

func TestFieldRoutes_IncidentEscalates(t *testing.T) {
	s := newTestServer(t)
	bk := s.createBooking(t, "cod")
	admin := "/api/v1/admin/bookings/" + bk.ID.String()
	field := "/api/v1/field/jobs/" + bk.ID.String()

	_, _ = s.do(t, http.MethodPost, "/api/v1/payments/create-order", s.customerToken, map[string]interface{}{"booking_id": bk.ID})
	code, _ := s.do(t, http.MethodPut, admin+"/assign", s.adminToken, map[string]interface{}{"technician_id": s.technicianID})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, field+"/incident", s.technicianToken, map[string]interface{}{
		"description":       "cracked tank wall",
		"severity":          "high",
		"photo_urls":        []string{"https://cdn.example.com/crack.jpg"},
		"unable_to_proceed": true,
	})
	require.Equal(t, http.StatusCreated, code, "error: %+v", env.Error)
	escalated := decode[application.BookingDTO](t, env)
	assert.Equal(t, "escalated", escalated.Status)
	require.Len(t, escalated.IncidentReports, 1)
	assert.Equal(t, []string{"https://cdn.example.com/crack.jpg"}, escalated.IncidentReports[0].PhotoURLs)

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/bookings?status=escalated", s.adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), env.Meta.Total)

	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/bookings?user_id=bad", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPut, admin+"/status", s.adminToken, map[string]interface{}{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Equal(t, "confirmed", decode[application.BookingDTO](t, env).Status)

	code, env = s.do(t, http.MethodPut, admin+"/reschedule", s.adminToken, map[string]interface{}{
		"service_date": "2026-11-05", "service_time": "14:00-16:00",
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Equal(t, "2026-11-05", decode[application.BookingDTO](t, env).ServiceDate)

	code, env = s.do(t, http.MethodDelete, admin, s.adminToken, nil)
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Equal(t, "cancelled", decode[application.BookingDTO](t, env).Status)

	code, env = s.do(t, http.MethodGet, "/api/v1/field/stats", s.technicianToken, nil)
	require.Equal(t, http.StatusOK, code)
}
