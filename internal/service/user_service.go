package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartmart/internal/entity"
)

const minPasswordLength = 8

type UserService struct {
	userRepo  UserRepository
	orderRepo OrderRepository
	rdb       *redis.Client
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewUserService(userRepo UserRepository, orderRepo OrderRepository, rdb *redis.Client, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		userRepo:  userRepo,
		orderRepo: orderRepo,
		rdb:       rdb,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (r *RegisterRequest) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.Name) == "" {
		fields["name"] = "is required"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(r.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*entity.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if translate(err) != ErrNotFound {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.CreateUser(ctx, &entity.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: string(hash),
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     entity.RoleCustomer,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error creating user")
		return nil, err
	}
	return user, nil
}

func sessionKey(userID int64, tokenID string) string {
	return fmt.Sprintf("session:%d:%s", userID, tokenID)
}

// Login checks the credentials and issues a signed token. The session is kept in
// redis so it can be revoked before the token expires.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *entity.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if translate(err) == ErrNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if user.AnonymizedAt != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	tokenID := uuid.NewString()
	claims := &entity.JwtCustomClaims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	}
	t, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	if err := s.rdb.Set(ctx, sessionKey(user.ID, tokenID), "1", s.tokenTTL).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error storing session for user %d", user.ID)
		return "", nil, err
	}
	return t, user, nil
}

// ValidateSession reports whether the token's session has not been revoked.
func (s *UserService) ValidateSession(ctx context.Context, claims *entity.JwtCustomClaims) error {
	if claims.ID == "" {
		return ErrInvalidCredentials
	}
	err := s.rdb.Get(ctx, sessionKey(claims.UserID, claims.ID)).Err()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidCredentials
	}
	return err
}

func (s *UserService) Logout(ctx context.Context, claims *entity.JwtCustomClaims) error {
	return s.rdb.Del(ctx, sessionKey(claims.UserID, claims.ID)).Err()
}

// RevokeSessions deletes every session key of the user so outstanding tokens
// stop validating.
func (s *UserService) RevokeSessions(ctx context.Context, userID int64) error {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, fmt.Sprintf("session:%d:*", userID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

type Profile struct {
	*entity.User
	OrderCount int    `json:"order_count"`
	TotalSpent string `json:"total_spent"`
}

func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	count, total, err := s.orderRepo.OrderSummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, OrderCount: count, TotalSpent: total.StringFixed(2)}, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return s.userRepo.GetUsers(ctx, normalizeLimit(limit, defaultProductLimit, maxProductLimit), offset)
}
