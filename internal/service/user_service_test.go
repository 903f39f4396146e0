package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
)

const testSecret = "secret"

func TestRegisterAndLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := NewUserService(users, newMemDB(), newRedis(t), testSecret, time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{Name: "Ada", Email: " Ada@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, entity.RoleCustomer, user.Role)
	assert.NotEqual(t, "correct horse", user.Password)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = svc.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, _, err := svc.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)

	claims := &entity.JwtCustomClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	assert.Equal(t, user.ID, claims.UserID)
	assert.NotEmpty(t, claims.ID)

	require.NoError(t, svc.ValidateSession(ctx, claims))
	require.NoError(t, svc.Logout(ctx, claims))
	assert.ErrorIs(t, svc.ValidateSession(ctx, claims), ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), newMemDB(), newRedis(t), testSecret, time.Hour)
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "not-an-email", Password: "short"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestAnonymizedUserCannotLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := NewUserService(users, newMemDB(), newRedis(t), testSecret, time.Hour)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, users.AnonymizeUser(ctx, user.ID, "scrambled"))
	_, _, err = svc.Login(ctx, "deleted-101@anonymized.invalid", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProfileSummarizesOrders(t *testing.T) {
	f := newCheckoutFixture(t, 10)
	placeOrder(t, f, 101, payment.MethodStripe)
	placeOrder(t, f, 101, payment.MethodCOD)

	users := newFakeUserRepo()
	users.users[101] = &entity.User{ID: 101, Name: "Ada", Email: "ada@example.com"}
	svc := NewUserService(users, f.db, newRedis(t), testSecret, time.Hour)

	profile, err := svc.Profile(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.OrderCount)
	assert.Equal(t, "54.00", profile.TotalSpent)

	_, err = svc.Profile(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}
