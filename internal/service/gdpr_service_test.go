package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
	"smartmart/internal/repository"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*entity.User
	next  int64
	// set by AnonymizeUser so tests can check the side tables were cleared
	cleared []int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*entity.User{}, next: 100}
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.User
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	user.ID = r.next
	cp := *user
	r.users[user.ID] = &cp
	return user, nil
}

func (r *fakeUserRepo) AnonymizeUser(ctx context.Context, userID int64, scrambledPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	u.Name = "Deleted User"
	u.Email = fmt.Sprintf("deleted-%d@anonymized.invalid", userID)
	u.Phone = ""
	u.Address = ""
	u.Password = scrambledPassword
	u.AnonymizedAt = &now
	r.cleared = append(r.cleared, userID)
	return nil
}

type fakeDataRequestRepo struct {
	reqs map[int64]*entity.DataRequest
	next int64
}

func newFakeDataRequestRepo() *fakeDataRequestRepo {
	return &fakeDataRequestRepo{reqs: map[int64]*entity.DataRequest{}}
}

func (r *fakeDataRequestRepo) CreateDataRequest(ctx context.Context, req *entity.DataRequest) (*entity.DataRequest, error) {
	r.next++
	req.ID = r.next
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	cp := *req
	r.reqs[req.ID] = &cp
	return req, nil
}

func (r *fakeDataRequestRepo) GetDataRequest(ctx context.Context, id int64) (*entity.DataRequest, error) {
	req, ok := r.reqs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeDataRequestRepo) FindOpenDataRequest(ctx context.Context, userID int64, reqType entity.DataRequestType) (*entity.DataRequest, error) {
	for _, req := range r.reqs {
		if req.UserID == userID && req.Type == reqType && req.Open() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeDataRequestRepo) GetDataRequests(ctx context.Context, filter repository.DataRequestFilter) ([]*entity.DataRequest, error) {
	var out []*entity.DataRequest
	for _, req := range r.reqs {
		if filter.UserID != nil && req.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.CreatedBefore != nil && (!req.CreatedAt.Before(*filter.CreatedBefore) || !req.Open()) {
			continue
		}
		if filter.ExpiredBefore != nil && (req.ExportPath == "" || req.ExpiresAt == nil || !req.ExpiresAt.Before(*filter.ExpiredBefore)) {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeDataRequestRepo) UpdateDataRequest(ctx context.Context, req *entity.DataRequest) error {
	cp := *req
	r.reqs[req.ID] = &cp
	return nil
}

type fakeFileStore struct {
	files map[string][]byte
}

func (s *fakeFileStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	path := "exports/" + name
	s.files[path] = data
	return path, nil
}

func (s *fakeFileStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (s *fakeFileStore) Delete(ctx context.Context, path string) error {
	delete(s.files, path)
	return nil
}

type gdprFixture struct {
	requests *fakeDataRequestRepo
	users    *fakeUserRepo
	db       *memDB
	files    *fakeFileStore
	jobs     *fakePublisher
	sessions *UserService
	svc      *GDPRService
	now      time.Time
}

func newGDPRFixture(t *testing.T) *gdprFixture {
	f := &gdprFixture{
		requests: newFakeDataRequestRepo(),
		users:    newFakeUserRepo(),
		files:    &fakeFileStore{files: map[string][]byte{}},
		jobs:     &fakePublisher{},
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.users.users[1] = &entity.User{ID: 1, Name: "Ada", Email: "ada@example.com", Phone: "555", Address: "1 Main St", Password: "hash"}

	checkout := newCheckoutFixture(t, 10)
	placeOrder(t, checkout, 1, payment.MethodStripe)
	placeOrder(t, checkout, 1, payment.MethodCOD)
	f.db = checkout.db
	f.sessions = NewUserService(f.users, f.db, newRedis(t), testSecret, time.Hour)

	f.svc = NewGDPRService(f.requests, f.users, f.db, newFakeSubscriptionRepo(), newFakeNotificationRepo(), f.files, f.jobs,
		nil, f.sessions, 30*24*time.Hour, 30*24*time.Hour)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestSubmitRejectsDuplicateOpenRequest(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, 1, entity.DataRequestExport, "please")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, 1, entity.DataRequestExport, "again")
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	_, err = f.svc.Submit(ctx, 1, entity.DataRequestDeletion, "")
	assert.NoError(t, err, "a different type is allowed")

	var verr *ValidationError
	_, err = f.svc.Submit(ctx, 1, "rectify", "")
	assert.ErrorAs(t, err, &verr)
}

func TestTransitionQueuesJob(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, 1, entity.DataRequestDeletion, "")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "approved")
	require.NoError(t, err)
	assert.Equal(t, entity.DataRequestProcessing, updated.Status)
	assert.Equal(t, int64(99), *updated.ProcessedBy)
	assert.Equal(t, []string{fmt.Sprintf("job.gdpr.deletion.%d", req.ID)}, f.jobs.keys())
}

func TestTransitionRevertsWhenQueueFails(t *testing.T) {
	f := newGDPRFixture(t)
	f.jobs.err = errors.New("broker down")
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, 1, entity.DataRequestExport, "")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "")
	require.Error(t, err)
	stored, _ := f.requests.GetDataRequest(ctx, req.ID)
	assert.Equal(t, entity.DataRequestPending, stored.Status)
}

func TestExportWritesDocument(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, 1, entity.DataRequestExport, "")
	require.NoError(t, err)

	// not approved yet, so the job is a no-op
	require.NoError(t, f.svc.ProcessExport(ctx, req.ID))
	assert.Empty(t, f.files.files)

	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessExport(ctx, req.ID))

	stored, _ := f.requests.GetDataRequest(ctx, req.ID)
	assert.Equal(t, entity.DataRequestCompleted, stored.Status)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(f.now.Add(30*24*time.Hour)))

	data, name, err := f.svc.Download(ctx, 1, req.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("smartmart-data-export-%d.json", req.ID), name)

	var doc struct {
		Profile map[string]interface{}   `json:"profile"`
		Orders  []map[string]interface{} `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "ada@example.com", doc.Profile["email"])
	assert.NotContains(t, doc.Profile, "password")
	assert.Len(t, doc.Orders, 2)

	// redelivered job does not write a second file
	require.NoError(t, f.svc.ProcessExport(ctx, req.ID))
	assert.Len(t, f.files.files, 1)
}

func TestDownloadRules(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	req, err := f.svc.Submit(ctx, 1, entity.DataRequestExport, "")
	require.NoError(t, err)

	_, _, err = f.svc.Download(ctx, 1, req.ID)
	assert.ErrorIs(t, err, ErrNotFound, "not ready")

	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessExport(ctx, req.ID))

	_, _, err = f.svc.Download(ctx, 2, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	f.now = f.now.Add(31 * 24 * time.Hour)
	_, _, err = f.svc.Download(ctx, 1, req.ID)
	assert.ErrorIs(t, err, ErrNotFound, "expired")

	purged, err := f.svc.PurgeExpiredExports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.Empty(t, f.files.files)
	stored, _ := f.requests.GetDataRequest(ctx, req.ID)
	assert.Empty(t, stored.ExportPath)
}

func TestDeletionAnonymizesAndKeepsOrders(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	count, total, err := f.db.OrderSummary(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	req, err := f.svc.Submit(ctx, 1, entity.DataRequestDeletion, "")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessDeletion(ctx, req.ID))

	user, err := f.users.GetUserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Deleted User", user.Name)
	assert.Equal(t, "deleted-1@anonymized.invalid", user.Email)
	assert.Empty(t, user.Phone)
	assert.Empty(t, user.Address)
	assert.NotEqual(t, "hash", user.Password)
	assert.NotNil(t, user.AnonymizedAt)

	afterCount, afterTotal, err := f.db.OrderSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, count, afterCount)
	assert.True(t, total.Equal(afterTotal))

	stored, _ := f.requests.GetDataRequest(ctx, req.ID)
	assert.Equal(t, entity.DataRequestCompleted, stored.Status)
}

func TestProcessDeletionRevokesSessions(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	f.users.users[1].Password = string(hash)

	var sessions []*entity.JwtCustomClaims
	for i := 0; i < 2; i++ {
		token, _, err := f.sessions.Login(ctx, "ada@example.com", "correct horse")
		require.NoError(t, err)
		claims := &entity.JwtCustomClaims{}
		_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(testSecret), nil
		})
		require.NoError(t, err)
		require.NoError(t, f.sessions.ValidateSession(ctx, claims))
		sessions = append(sessions, claims)
	}

	req, err := f.svc.Submit(ctx, 1, entity.DataRequestDeletion, "")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, 99, req.ID, entity.DataRequestProcessing, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessDeletion(ctx, req.ID))

	for _, claims := range sessions {
		assert.ErrorIs(t, f.sessions.ValidateSession(ctx, claims), ErrInvalidCredentials)
	}
}

func TestOverdue(t *testing.T) {
	f := newGDPRFixture(t)
	ctx := context.Background()
	old, err := f.requests.CreateDataRequest(ctx, &entity.DataRequest{UserID: 1, Type: entity.DataRequestExport,
		Status: entity.DataRequestPending, CreatedAt: f.now.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = f.requests.CreateDataRequest(ctx, &entity.DataRequest{UserID: 1, Type: entity.DataRequestDeletion,
		Status: entity.DataRequestPending, CreatedAt: f.now.Add(-2 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = f.requests.CreateDataRequest(ctx, &entity.DataRequest{UserID: 2, Type: entity.DataRequestExport,
		Status: entity.DataRequestRejected, CreatedAt: f.now.Add(-90 * 24 * time.Hour)})
	require.NoError(t, err)

	overdue, err := f.svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, old.ID, overdue[0].ID)
}
