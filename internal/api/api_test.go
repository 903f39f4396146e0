package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmart/internal/entity"
	"smartmart/internal/service"
	"smartmart/internal/webhook"
)

const testSecret = "test-secret"

type stubUsers struct {
	UserService
	revoked  map[string]bool
	register func(req service.RegisterRequest) (*entity.User, error)
}

func (s *stubUsers) ValidateSession(ctx context.Context, claims *entity.JwtCustomClaims) error {
	if s.revoked[claims.ID] {
		return service.ErrInvalidCredentials
	}
	return nil
}

func (s *stubUsers) Profile(ctx context.Context, userID int64) (*service.Profile, error) {
	return &service.Profile{User: &entity.User{ID: userID, Name: "Ada"}, OrderCount: 2, TotalSpent: "54.00"}, nil
}

func (s *stubUsers) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return []*entity.User{{ID: 1}}, nil
}

func (s *stubUsers) Register(ctx context.Context, req service.RegisterRequest) (*entity.User, error) {
	return s.register(req)
}

func (s *stubUsers) Login(ctx context.Context, email, password string) (string, *entity.User, error) {
	if password != "correct horse" {
		return "", nil, service.ErrInvalidCredentials
	}
	return "token", &entity.User{ID: 5, Email: email}, nil
}

type stubCarts struct {
	CartService
	owners []entity.CartOwner
	merged []string
}

func (s *stubCarts) Get(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error) {
	s.owners = append(s.owners, owner)
	return &entity.Cart{}, nil
}

func (s *stubCarts) MergeGuestCart(ctx context.Context, sessionID string, userID int64) error {
	s.merged = append(s.merged, fmt.Sprintf("%s->%d", sessionID, userID))
	return nil
}

type stubCheckout struct {
	got service.CheckoutRequest
	err error
}

func (s *stubCheckout) Checkout(ctx context.Context, req service.CheckoutRequest) (*entity.Order, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &entity.Order{ID: 1, UserID: req.UserID, Status: entity.OrderProcessing}, nil
}

type stubGDPR struct {
	GDPRService
}

func (s *stubGDPR) Download(ctx context.Context, userID, id int64) ([]byte, string, error) {
	if userID != 1 {
		return nil, "", service.ErrForbidden
	}
	return []byte(`{"profile":{}}`), fmt.Sprintf("smartmart-data-export-%d.json", id), nil
}

type stubWebhook struct {
	err       error
	signature string
}

func (s *stubWebhook) Handle(ctx context.Context, payload []byte, signature string) error {
	s.signature = signature
	return s.err
}

type fixture struct {
	users    *stubUsers
	carts    *stubCarts
	checkout *stubCheckout
	webhook  *stubWebhook
	server   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		users:    &stubUsers{revoked: map[string]bool{}},
		carts:    &stubCarts{},
		checkout: &stubCheckout{},
		webhook:  &stubWebhook{},
	}
	h := Handlers{
		Users:           NewUserHandler(f.users, f.carts),
		Catalog:         NewCatalogHandler(nil, nil, nil),
		Carts:           NewCartHandler(f.carts),
		Orders:          NewOrderHandler(f.checkout, nil),
		Recommendations: NewRecommendationHandler(nil),
		Subscriptions:   NewSubscriptionHandler(nil),
		Notifications:   NewNotificationHandler(nil),
		GDPR:            NewGDPRHandler(&stubGDPR{}),
		Settings:        NewSettingHandler(nil),
		StripeWebhook:   NewStripeWebhookHandler(f.webhook),
	}
	f.server = NewRouter(h, f.users, RouterConfig{JWTSecret: testSecret})
	return f
}

func token(t *testing.T, userID int64, role, id string) string {
	claims := &entity.JwtCustomClaims{
		UserID: userID,
		Email:  "ada@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path, body, bearer string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{&service.ValidationError{Fields: map[string]string{"a": "b"}}, http.StatusUnprocessableEntity},
		{service.ErrEmptyCart, http.StatusUnprocessableEntity},
		{service.ErrInsufficientStock, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrDuplicateRequest, http.StatusConflict},
		{service.ErrInvalidCoupon, http.StatusConflict},
		{service.ErrCircularCategory, http.StatusConflict},
		{service.ErrIdempotencyConflict, http.StatusConflict},
		{service.ErrEmailTaken, http.StatusConflict},
		{fmt.Errorf("%w: card declined", service.ErrPaymentFailed), http.StatusPaymentRequired},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, httpStatus(tc.err))
		})
	}
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestProtectedRoutesNeedLiveSession(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/me", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok := token(t, 1, entity.RoleCustomer, "session-1")
	rec = f.do(http.MethodGet, "/api/me", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order_count":2`)

	f.users.revoked["session-1"] = true
	rec = f.do(http.MethodGet, "/api/me", "", tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/admin/users", "", token(t, 1, entity.RoleCustomer, "s1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/admin/users", "", token(t, 2, entity.RoleAdmin, "s2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationErrorsRenderFields(t *testing.T) {
	f := newFixture()
	f.users.register = func(req service.RegisterRequest) (*entity.User, error) {
		return nil, &service.ValidationError{Fields: map[string]string{"email": "must be a valid email address"}}
	}

	rec := f.do(http.MethodPost, "/register", `{"email":"nope"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"errors":{"email":"must be a valid email address"}}`, rec.Body.String())
}

func TestGuestCartSession(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/cart", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cartSessionCookie, cookies[0].Name)
	session := cookies[0].Value

	rec = f.do(http.MethodGet, "/cart", "", "", "Cookie", cartSessionCookie+"="+session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = f.do(http.MethodGet, "/cart", "", token(t, 9, entity.RoleCustomer, "s9"))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.carts.owners, 3)
	assert.Equal(t, session, f.carts.owners[0].SessionID)
	assert.Equal(t, session, f.carts.owners[1].SessionID)
	require.NotNil(t, f.carts.owners[2].UserID)
	assert.Equal(t, int64(9), *f.carts.owners[2].UserID)
}

func TestLoginMergesGuestCart(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"correct horse"}`, "",
		"Cookie", cartSessionCookie+"=guest-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"guest-1->5"}, f.carts.merged)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "token", body.Token)
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	tok := token(t, 3, entity.RoleCustomer, "s3")

	rec := f.do(http.MethodPost, "/api/checkout", `{"payment_method":"stripe","shipping_address":"1 Main St","user_id":99}`, tok,
		"Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(3), f.checkout.got.UserID)
	assert.Equal(t, "ada@example.com", f.checkout.got.Email)
	assert.Equal(t, "abc", f.checkout.got.IdempotencyKey)
	assert.Equal(t, "stripe", f.checkout.got.PaymentMethod)

	f.checkout.err = fmt.Errorf("%w: Your card was declined.", service.ErrPaymentFailed)
	rec = f.do(http.MethodPost, "/api/checkout", `{"payment_method":"stripe"}`, tok)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your card was declined.")

	f.checkout.err = errors.New("connection refused")
	rec = f.do(http.MethodPost, "/api/checkout", `{"payment_method":"stripe"}`, tok)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestStripeWebhookStatusCodes(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/webhooks/stripe", `{}`, "", "Stripe-Signature", "t=1,v1=x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t=1,v1=x", f.webhook.signature)

	f.webhook.err = fmt.Errorf("%w: bad signature", webhook.ErrInvalidPayload)
	rec = f.do(http.MethodPost, "/webhooks/stripe", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.webhook.err = errors.New("db down")
	rec = f.do(http.MethodPost, "/webhooks/stripe", `{}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExportDownload(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/data-requests/4/download", "", token(t, 1, entity.RoleCustomer, "s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="smartmart-data-export-4.json"`, rec.Header().Get("Content-Disposition"))
	assert.JSONEq(t, `{"profile":{}}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/data-requests/4/download", "", token(t, 2, entity.RoleCustomer, "s2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/data-requests/abc/download", "", token(t, 1, entity.RoleCustomer, "s1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
