package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/idempotency"
	"github.com/libreria-tm/backend/internal/metrics"
	"github.com/libreria-tm/backend/internal/repository/memory"
	"github.com/libreria-tm/backend/internal/service"
)

const testSecret = "test-secret"

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	e     *echo.Echo
	store *memory.Store
}

func newTestServer(t *testing.T, cfg ServerConfig) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.PutCustomer(entity.Customer{ID: 1, FirstName: "Ana", LastName: "Rojas"})
	store.PutSeller(entity.Seller{ID: 1, AuthID: "auth-seller-1", FirstName: "Luis", LastName: "Vaca", Email: "luis@tm.bo"})
	store.PutProduct(entity.Product{ID: 5, Name: "Cuaderno A4", SellPrice: decimal.NewFromInt(10), Stock: 10})
	repos := store.Repositories()

	reg := prometheus.NewRegistry()
	cfg.Registerer = reg
	cfg.Gatherer = reg
	sales := service.NewSaleService(repos, idempotency.NewLocalLocker(), nil, metrics.NewSaleMetrics(reg), service.SaleOptions{})
	h := NewHandler(sales, service.NewCatalogService(repos), service.NewReportService(repos.Invoices, time.UTC))
	return &testServer{e: NewServer(h, cfg), store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func bearer(t *testing.T, subject string) map[string]string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + signed}
}

const saleBody = `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":5,"quantity":3}]}`

func TestCreateSaleAndReplay(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	key := map[string]string{idempotency.Header: "checkout-1"}

	rec, env := s.do(t, http.MethodPost, "/api/sales", saleBody, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "OK", env.Code)
	var first entity.SaleResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "30", first.Total.String())
	assert.False(t, first.Replayed)

	rec, env = s.do(t, http.MethodPost, "/api/sales", saleBody, key)
	require.Equal(t, http.StatusOK, rec.Code)
	var second entity.SaleResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)

	other := `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":5,"quantity":4}]}`
	rec, env = s.do(t, http.MethodPost, "/api/sales", other, key)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", env.Code)
	assert.Equal(t, 1, s.store.InvoiceCount())
	assert.Equal(t, 7, s.productStock(t, 5))
}

func TestCreateSaleErrors(t *testing.T) {
	s := newTestServer(t, ServerConfig{})

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"malformed body", `{"customer_id":`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty lines", `{"customer_id":1,"seller_id":1,"line_items":[]}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":5,"quantity":0}]}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown customer", `{"customer_id":99,"seller_id":1,"line_items":[{"product_id":5,"quantity":1}]}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown product", `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":77,"quantity":1}]}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"not enough stock", `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":5,"quantity":11}]}`, nil, http.StatusBadRequest, "INSUFFICIENT_STOCK"},
		{"key too long", saleBody, map[string]string{idempotency.Header: strings.Repeat("k", 129)}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodPost, "/api/sales", tt.body, tt.headers)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
	assert.Equal(t, 0, s.store.InvoiceCount())
	assert.Equal(t, 10, s.productStock(t, 5))
}

func (s *testServer) productStock(t *testing.T, id int64) int {
	t.Helper()
	rec, env := s.do(t, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p entity.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Equal(t, id, p.ID)
	return p.Stock
}

func TestInsufficientStockDetailsHiddenInProduction(t *testing.T) {
	body := `{"customer_id":1,"seller_id":1,"line_items":[{"product_id":5,"quantity":11}]}`

	_, dev := newTestServer(t, ServerConfig{}).do(t, http.MethodPost, "/api/sales", body, nil)
	var details map[string]any
	require.NoError(t, json.Unmarshal(dev.Details, &details))
	assert.EqualValues(t, 10, details["available"])
	assert.EqualValues(t, 11, details["requested"])

	_, prod := newTestServer(t, ServerConfig{Production: true}).do(t, http.MethodPost, "/api/sales", body, nil)
	assert.Equal(t, "INSUFFICIENT_STOCK", prod.Code)
	assert.Empty(t, prod.Details)
}

func TestAuthOnMutatingRoutes(t *testing.T) {
	s := newTestServer(t, ServerConfig{JWTSecret: testSecret})
	customer := `{"first_name":"Rosa","last_name":"Mamani"}`

	rec, env := s.do(t, http.MethodPost, "/api/customers", customer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/customers", customer, map[string]string{echo.HeaderAuthorization: "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/customers", customer, bearer(t, "someone-else"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/customers", customer, bearer(t, "auth-seller-1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "OK", env.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/customers", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSellerFromToken(t *testing.T) {
	s := newTestServer(t, ServerConfig{JWTSecret: testSecret})

	rec, env := s.do(t, http.MethodGet, "/api/sellers/me", "", bearer(t, "auth-seller-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var me entity.Seller
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, int64(1), me.ID)

	body := `{"customer_id":1,"line_items":[{"product_id":5,"quantity":1}]}`
	rec, env = s.do(t, http.MethodPost, "/api/sales", body, bearer(t, "auth-seller-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res entity.SaleResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Luis Vaca", res.Seller.Name)
}

func TestSaleForAnotherSellerIsForbidden(t *testing.T) {
	s := newTestServer(t, ServerConfig{JWTSecret: testSecret})
	s.store.PutSeller(entity.Seller{ID: 2, AuthID: "auth-seller-2", FirstName: "Eva", LastName: "Mena", Email: "eva@tm.bo"})

	body := `{"customer_id":1,"seller_id":2,"line_items":[{"product_id":5,"quantity":1}]}`
	rec, env := s.do(t, http.MethodPost, "/api/sales", body, bearer(t, "auth-seller-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)
	assert.Equal(t, 0, s.store.InvoiceCount())

	rec, _ = s.do(t, http.MethodPost, "/api/sales", saleBody, bearer(t, "auth-seller-1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSellerOnlyReads(t *testing.T) {
	s := newTestServer(t, ServerConfig{JWTSecret: testSecret})

	for _, path := range []string{"/api/products", "/api/products/category/Libros", "/api/sellers/1/sales"} {
		rec, env := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "UNAUTHORIZED", env.Code, path)

		rec, _ = s.do(t, http.MethodGet, path, "", bearer(t, "someone-else"))
		assert.Equal(t, http.StatusForbidden, rec.Code, path)

		rec, env = s.do(t, http.MethodGet, path, "", bearer(t, "auth-seller-1"))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "OK", env.Code, path)
	}

	assert.Equal(t, 10, s.productStock(t, 5))
}

func TestRegisterSellerUsesTokenSubject(t *testing.T) {
	s := newTestServer(t, ServerConfig{JWTSecret: testSecret})

	body := `{"first_name":"Carla","last_name":"Quispe","email":"carla@tm.bo","auth_id":"ignored"}`
	rec, env := s.do(t, http.MethodPost, "/api/sellers", body, bearer(t, "auth-new"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v entity.Seller
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "auth-new", v.AuthID)

	rec, _ = s.do(t, http.MethodGet, "/api/sellers/me", "", bearer(t, "auth-new"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, ServerConfig{})

	rec, env := s.do(t, http.MethodGet, "/api/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ID", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/products/404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/products", `{"name":"Lápiz","sell_price":"1.50","stock":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/products/total", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":1}`, string(env.Data))

	rec, _ = s.do(t, http.MethodPost, "/api/sales", saleBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, env = s.do(t, http.MethodDelete, "/api/products/5", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IN_USE", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/customers/1/purchases", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var purchases entity.CustomerPurchases
	require.NoError(t, json.Unmarshal(env.Data, &purchases))
	assert.Len(t, purchases.Purchases, 1)
}

func TestInvoiceListingAndCSV(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	rec, _ := s.do(t, http.MethodPost, "/api/sales", saleBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/invoices", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entity.InvoiceSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "30", list[0].Total.String())

	rec, _ = s.do(t, http.MethodGet, "/api/invoices?format=csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "code,date,customer,seller,lines,total", lines[0])
	assert.Contains(t, lines[1], "Ana Rojas")
	assert.True(t, strings.HasSuffix(lines[1], ",1,30.00"))

	rec, env = s.do(t, http.MethodGet, "/api/invoices/"+strconv.FormatInt(list[0].ID, 10)+"/document", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc entity.InvoiceDocument
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, list[0].Code, doc.Code)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "Cuaderno A4", doc.Lines[0].ProductName)
}

func TestDashboardRoutes(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	for _, path := range []string{"/api/dashboard/today", "/api/dashboard/last7days", "/api/dashboard/month", "/api/dashboard/compare"} {
		rec, env := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "OK", env.Code, path)
	}

	_, env := s.do(t, http.MethodGet, "/api/dashboard/last7days", "", nil)
	var days []entity.DailySales
	require.NoError(t, json.Unmarshal(env.Data, &days))
	assert.Len(t, days, 7)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	rec, env := s.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, ServerConfig{})

	rec, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))

	s.do(t, http.MethodPost, "/api/sales", saleBody, nil)
	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "libreria_requests_total")
}
