package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mstoica/storefront/internal/cart"
	"github.com/mstoica/storefront/internal/checkout"
	"github.com/mstoica/storefront/internal/inventory"
	"github.com/mstoica/storefront/internal/models"
	"github.com/mstoica/storefront/internal/notify"
	"github.com/mstoica/storefront/internal/order"
)

var jwtSecret = []byte("test-jwt-secret")

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Product{}, &models.User{}, &models.CartItem{},
		&models.Cart{}, &models.Order{}, &models.OrderItem{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	store := inventory.NewStore(db)
	cartSvc := &cart.Service{Repo: &cart.GormRepo{DB: db}}
	orderRepo := &order.GormRepo{DB: db}

	e := echo.New()
	Register(e, &Deps{
		CartHandler: &CartHTTP{Svc: cartSvc},
		OrderHandler: &OrderHTTP{
			Coordinator: &checkout.Coordinator{DB: db, Inventory: store, Dispatch: notify.Nop{}},
			Lifecycle:   &order.Lifecycle{DB: db, Inventory: store, Dispatch: notify.Nop{}},
			Repo:        orderRepo,
			CartSvc:     cartSvc,
		},
		JWTSecret: jwtSecret,
	})

	return &testEnv{T: t, E: e, DB: db}
}

func signToken(t *testing.T, sub uint, role string) *http.Cookie {
	claims := jwt.MapClaims{
		"sub":  float64(sub),
		"role": role,
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: "accessToken", Value: token, Path: "/"}
}

func (env *testEnv) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedUser(id uint, role string) {
	require.NoError(env.T, env.DB.Create(&models.User{
		ID:    id,
		Email: fmt.Sprintf("user%d@example.com", id),
		Role:  role,
	}).Error)
}

func (env *testEnv) seedProduct(name string, price float64, stock int) uuid.UUID {
	p := models.Product{Name: name, Brand: "acme", Price: price, Quantity: stock}
	require.NoError(env.T, env.DB.Create(&p).Error)
	return p.ID
}

func TestCartEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	p := env.seedProduct("widget", 25, 10)
	ck := signToken(t, 1, "user")

	rec := env.do(http.MethodPost, "/user/cart/"+p.String(), nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)

	var view cart.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Items, 1)
	require.InDelta(t, 25.0, view.TotalPrice, 1e-9)

	// Adding the same product twice conflicts.
	rec = env.do(http.MethodPost, "/user/cart/"+p.String(), nil, ck)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPut, "/user/cart/quantity/"+p.String(), map[string]uint{"quantity": 4}, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, uint(4), view.TotalQuantity)

	rec = env.do(http.MethodPut, "/user/cart/quantity/"+p.String(), map[string]uint{"quantity": 0}, ck)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/user/cart/"+p.String(), nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Empty(t, view.Items)

	rec = env.do(http.MethodPut, "/user/cart/quantity/"+p.String(), map[string]uint{"quantity": 2}, ck)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/user/cart", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	p := env.seedProduct("widget", 25, 10)
	ck := signToken(t, 1, "user")

	rec := env.do(http.MethodPost, "/user/cart/"+p.String(), nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)

	body := map[string]interface{}{
		"delivery_data":  map[string]string{"first_name": "Ana", "last_name": "Pop"},
		"billing_data":   map[string]string{"first_name": "Ana", "last_name": "Pop"},
		"payment_method": "card",
		"observation":    "",
	}
	rec = env.do(http.MethodPost, "/order", body, ck)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Order models.Order `json:"order"`
		Cart  cart.View    `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, models.OrderStatusPending, resp.Order.Status)
	require.InDelta(t, 25.0, resp.Order.TotalPrice, 1e-9)
	require.Empty(t, resp.Cart.Items)
	require.Zero(t, resp.Cart.TotalQuantity)
}

func TestCheckoutStockConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	p := env.seedProduct("widget", 25, 3)
	ck := signToken(t, 1, "user")

	env.do(http.MethodPost, "/user/cart/"+p.String(), nil, ck)
	env.do(http.MethodPut, "/user/cart/quantity/"+p.String(), map[string]uint{"quantity": 5}, ck)

	rec := env.do(http.MethodPost, "/order", map[string]interface{}{}, ck)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// echo serializes a non-string HTTPError message as the body itself.
	var resp struct {
		Product      string `json:"product"`
		MaxAvailable int    `json:"max_available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "widget", resp.Product)
	require.Equal(t, 3, resp.MaxAvailable)

	// Nothing moved.
	var prod models.Product
	require.NoError(t, env.DB.First(&prod, "id = ?", p).Error)
	require.Equal(t, 3, prod.Quantity)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	ck := signToken(t, 1, "user")

	rec := env.do(http.MethodPost, "/order", map[string]interface{}{}, ck)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	env.seedUser(2, "admin")
	p := env.seedProduct("widget", 25, 10)
	userCk := signToken(t, 1, "user")
	adminCk := signToken(t, 2, "admin")

	env.do(http.MethodPost, "/user/cart/"+p.String(), nil, userCk)
	rec := env.do(http.MethodPost, "/order", map[string]interface{}{}, userCk)
	require.Equal(t, http.StatusOK, rec.Code)

	// Listing is operator-only.
	rec = env.do(http.MethodGet, "/order", nil, userCk)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/order", nil, adminCk)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.EqualValues(t, 1, list.Total)
	orderID := list.Orders[0].ID

	rec = env.do(http.MethodGet, "/order/"+orderID.String(), nil, adminCk)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/order/"+orderID.String()+"/status",
		map[string]string{"status": "active"}, adminCk)
	require.Equal(t, http.StatusOK, rec.Code)

	// pending is never a valid target.
	rec = env.do(http.MethodPut, "/order/"+orderID.String()+"/status",
		map[string]string{"status": "pending"}, adminCk)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/order/"+orderID.String()+"/status",
		map[string]string{"status": "canceled"}, adminCk)
	require.Equal(t, http.StatusOK, rec.Code)

	// Terminal: cannot reopen.
	rec = env.do(http.MethodPut, "/order/"+orderID.String()+"/status",
		map[string]string{"status": "active"}, adminCk)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/order/"+uuid.NewString()+"/status",
		map[string]string{"status": "active"}, adminCk)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnOrders(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(1, "user")
	env.seedUser(2, "user")
	p := env.seedProduct("widget", 25, 10)
	buyer := signToken(t, 1, "user")
	other := signToken(t, 2, "user")

	env.do(http.MethodPost, "/user/cart/"+p.String(), nil, buyer)
	rec := env.do(http.MethodPost, "/order", map[string]interface{}{}, buyer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/user/orders", nil, buyer)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)

	rec = env.do(http.MethodGet, "/user/orders/"+mine[0].ID.String(), nil, other)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/user/orders/"+mine[0].ID.String(), nil, buyer)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(2, "admin")
	adminCk := signToken(t, 2, "admin")

	rec := env.do(http.MethodGet, "/order/search?q=abc", nil, adminCk)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
