package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
	repo "github.com/Additional-Code/palate/internal/repository/order"
	service "github.com/Additional-Code/palate/internal/service/order"
	"github.com/Additional-Code/palate/internal/transport/http/admin"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

const secret = "s3cret"

type mockService struct {
	mock.Mock
}

func (m *mockService) Create(ctx context.Context, in service.CreateInput) (service.CreateResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(service.CreateResult), args.Error(1)
}

func (m *mockService) Get(ctx context.Context, id int64) (entity.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(entity.Order), args.Error(1)
}

func (m *mockService) List(ctx context.Context, limit int) ([]entity.Order, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]entity.Order), args.Error(1)
}

func (m *mockService) SetStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockService) Patch(ctx context.Context, id int64, fields repo.Fieldset) (entity.Order, error) {
	args := m.Called(ctx, id, fields)
	return args.Get(0).(entity.Order), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, svc Service, method, target, body string, authed bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	Register(e, NewHandler(svc, config.Config{Admin: config.Admin{SharedSecret: secret}}))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authed {
		req.Header.Set(admin.HeaderKey, secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestCreate(t *testing.T) {
	svc := new(mockService)
	svc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateInput) bool {
		return in.Order.CustomerName == "Rivka" &&
			len(in.Order.Items) == 1 &&
			in.PDFDataURL == "data:application/pdf;base64,AA=="
	})).Return(service.CreateResult{ID: 3, OrderNumber: 1602, Warnings: []string{"email not configured"}}, nil)

	rec, env := serve(t, svc, http.MethodPost, "/orders",
		`{"customer_name":"Rivka","items":[{"name":"Challah"}],"pdf_data_url":"data:application/pdf;base64,AA=="}`, false)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":3,"order_number":1602}`, string(env.Data))
	assert.Equal(t, []any{"email not configured"}, env.Meta["warnings"])
}

func TestAdminRoutesRequireKey(t *testing.T) {
	svc := new(mockService)
	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/orders"},
		{http.MethodGet, "/orders/1"},
		{http.MethodPut, "/orders/1/status"},
		{http.MethodPatch, "/orders/1"},
	} {
		rec, env := serve(t, svc, tc.method, tc.target, `{}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.target)
		assert.Equal(t, "unauthorized", env.Error.Kind)
	}
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestList(t *testing.T) {
	svc := new(mockService)
	svc.On("List", mock.Anything, 2).Return([]entity.Order{{ID: 5}, {ID: 4}}, nil)
	svc.On("List", mock.Anything, 0).Return([]entity.Order{}, nil)

	rec, env := serve(t, svc, http.MethodGet, "/orders?limit=2", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	var orders []entity.Order
	require.NoError(t, json.Unmarshal(env.Data, &orders))
	assert.Len(t, orders, 2)

	rec, _ = serve(t, svc, http.MethodGet, "/orders", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = serve(t, svc, http.MethodGet, "/orders?limit=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", env.Error.Details["field"])
}

func TestSetStatus(t *testing.T) {
	svc := new(mockService)
	svc.On("SetStatus", mock.Anything, int64(7), "ready").Return(nil)
	svc.On("SetStatus", mock.Anything, int64(8), "ready").Return(errorbank.NotFound("Order not found"))

	rec, env := serve(t, svc, http.MethodPut, "/orders/7/status", `{"status":"ready"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, string(env.Data))

	rec, _ = serve(t, svc, http.MethodPut, "/orders/8/status", `{"status":"ready"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(t, svc, http.MethodPut, "/orders/abc/status", `{"status":"ready"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatch_BodyShapes(t *testing.T) {
	want := repo.Fieldset{"status": json.RawMessage(`"done"`)}

	tests := []struct {
		name string
		body string
	}{
		{name: "wrapped", body: `{"patch":{"status":"done"}}`},
		{name: "bare", body: `{"status":"done"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Patch", mock.Anything, int64(3), want).Return(entity.Order{ID: 3, Status: "done"}, nil).Once()

			rec, env := serve(t, svc, http.MethodPatch, "/orders/3", tt.body, true)
			assert.Equal(t, http.StatusOK, rec.Code)

			var order entity.Order
			require.NoError(t, json.Unmarshal(env.Data, &order))
			assert.Equal(t, "done", order.Status)
			svc.AssertExpectations(t)
		})
	}
}

func TestPatch_Errors(t *testing.T) {
	svc := new(mockService)
	svc.On("Patch", mock.Anything, int64(3), mock.Anything).
		Return(entity.Order{}, errorbank.BadRequest("allergies must be a string", errorbank.WithDetail("field", "allergies")))
	svc.On("Patch", mock.Anything, int64(404), mock.Anything).
		Return(entity.Order{}, errorbank.NotFound("Order not found"))

	rec, env := serve(t, svc, http.MethodPatch, "/orders/3", `{"allergies":123}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "allergies must be a string", env.Error.Message)
	assert.Equal(t, "allergies", env.Error.Details["field"])

	rec, _ = serve(t, svc, http.MethodPatch, "/orders/404", `{"status":"done"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = serve(t, svc, http.MethodPatch, "/orders/3", `{"patch":"nope"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing id or patch", env.Error.Message)

	rec, _ = serve(t, svc, http.MethodPatch, "/orders/3", `[1]`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet(t *testing.T) {
	svc := new(mockService)
	svc.On("Get", mock.Anything, int64(9)).Return(entity.Order{ID: 9, OrderNumber: 1609}, nil)

	rec, env := serve(t, svc, http.MethodGet, "/orders/9?key="+secret, "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	var order entity.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, int64(1609), order.OrderNumber)
}
