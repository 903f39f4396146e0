package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartmart/internal/entity"
	"smartmart/internal/repository"
)

const exportNotificationLimit = 10000

type GDPRService struct {
	requestRepo      DataRequestRepository
	userRepo         UserRepository
	orderRepo        OrderRepository
	subRepo          SubscriptionRepository
	notificationRepo NotificationRepository
	files            FileStore
	jobs             Publisher
	notifier         *NotificationService
	sessions         SessionRevoker
	exportTTL        time.Duration
	overdueAfter     time.Duration
	now              func() time.Time
}

func NewGDPRService(requestRepo DataRequestRepository, userRepo UserRepository, orderRepo OrderRepository,
	subRepo SubscriptionRepository, notificationRepo NotificationRepository, files FileStore, jobs Publisher,
	notifier *NotificationService, sessions SessionRevoker, exportTTL, overdueAfter time.Duration) *GDPRService {
	return &GDPRService{
		requestRepo:      requestRepo,
		userRepo:         userRepo,
		orderRepo:        orderRepo,
		subRepo:          subRepo,
		notificationRepo: notificationRepo,
		files:            files,
		jobs:             jobs,
		notifier:         notifier,
		sessions:         sessions,
		exportTTL:        exportTTL,
		overdueAfter:     overdueAfter,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Submit files a new request. Only one open request per type is allowed.
func (s *GDPRService) Submit(ctx context.Context, userID int64, reqType entity.DataRequestType, reason string) (*entity.DataRequest, error) {
	if !reqType.Valid() {
		return nil, invalid("type", "must be export or deletion")
	}

	_, err := s.requestRepo.FindOpenDataRequest(ctx, userID, reqType)
	if err == nil {
		return nil, ErrDuplicateRequest
	}
	if translate(err) != ErrNotFound {
		return nil, err
	}

	return s.requestRepo.CreateDataRequest(ctx, &entity.DataRequest{
		UserID: userID,
		Type:   reqType,
		Status: entity.DataRequestPending,
		Reason: strings.TrimSpace(reason),
	})
}

func (s *GDPRService) ListForUser(ctx context.Context, userID int64) ([]*entity.DataRequest, error) {
	return s.requestRepo.GetDataRequests(ctx, repository.DataRequestFilter{UserID: &userID})
}

func (s *GDPRService) List(ctx context.Context, status entity.DataRequestStatus) ([]*entity.DataRequest, error) {
	return s.requestRepo.GetDataRequests(ctx, repository.DataRequestFilter{Status: status})
}

// Transition applies an admin decision. Moving to processing queues the export or
// deletion job; the request goes back to pending if the job cannot be queued.
func (s *GDPRService) Transition(ctx context.Context, adminID, id int64, status entity.DataRequestStatus, notes string) (*entity.DataRequest, error) {
	req, err := s.requestRepo.GetDataRequest(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !req.Status.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}

	previous := req.Status
	now := s.now()
	req.Status = status
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	if notes != "" {
		req.AdminNotes = notes
	}
	if err := s.requestRepo.UpdateDataRequest(ctx, req); err != nil {
		return nil, err
	}

	if status == entity.DataRequestProcessing {
		jobType := entity.JobGDPRExport
		if req.Type == entity.DataRequestDeletion {
			jobType = entity.JobGDPRDeletion
		}
		if err := enqueue(ctx, s.jobs, entity.Job{Type: jobType, ID: req.ID, UserID: req.UserID}); err != nil {
			logger.Error().Err(err).Msgf("Error queueing %s for data request %d", jobType, req.ID)
			req.Status = previous
			if rbErr := s.requestRepo.UpdateDataRequest(ctx, req); rbErr != nil {
				logger.Error().Err(rbErr).Msgf("Data request %d left in processing without a job", req.ID)
			}
			return nil, err
		}
	}

	if status == entity.DataRequestRejected {
		s.notify(ctx, req.UserID, "gdpr.rejected", "Your data request was rejected", req.AdminNotes)
	}
	return req, nil
}

type exportDocument struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	Profile       *entity.User           `json:"profile"`
	Orders        []*entity.Order        `json:"orders"`
	Subscriptions []*entity.Subscription `json:"subscriptions"`
	Notifications []*entity.Notification `json:"notifications"`
	DataRequests  []*entity.DataRequest  `json:"data_requests"`
}

// ProcessExport writes the user's data to private storage. Requests that are no
// longer processing are skipped so a redelivered job does nothing.
func (s *GDPRService) ProcessExport(ctx context.Context, id int64) error {
	req, err := s.processing(ctx, id, entity.DataRequestExport)
	if req == nil || err != nil {
		return err
	}

	doc, err := s.collect(ctx, req.UserID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("gdpr-export-%d-%s.json", req.UserID, uuid.NewString())
	path, err := s.files.Put(ctx, name, data)
	if err != nil {
		logger.Error().Err(err).Msgf("Error storing export for data request %d", req.ID)
		return err
	}

	now := s.now()
	expires := now.Add(s.exportTTL)
	req.Status = entity.DataRequestCompleted
	req.ExportPath = path
	req.ExpiresAt = &expires
	req.ProcessedAt = &now
	if err := s.requestRepo.UpdateDataRequest(ctx, req); err != nil {
		return err
	}

	s.notify(ctx, req.UserID, "gdpr.export_ready", "Your data export is ready",
		fmt.Sprintf("Download it before %s.", expires.Format("2 January 2006")))
	return nil
}

func (s *GDPRService) collect(ctx context.Context, userID int64) (*exportDocument, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	orders, err := s.orderRepo.GetOrders(ctx, repository.OrderFilter{UserID: &userID}, true)
	if err != nil {
		return nil, err
	}
	subs, err := s.subRepo.GetSubscriptions(ctx, &userID)
	if err != nil {
		return nil, err
	}
	notifications, err := s.notificationRepo.GetNotifications(ctx, userID, false, exportNotificationLimit)
	if err != nil {
		return nil, err
	}
	requests, err := s.requestRepo.GetDataRequests(ctx, repository.DataRequestFilter{UserID: &userID})
	if err != nil {
		return nil, err
	}
	return &exportDocument{
		GeneratedAt:   s.now(),
		Profile:       user,
		Orders:        orders,
		Subscriptions: subs,
		Notifications: notifications,
		DataRequests:  requests,
	}, nil
}

// ProcessDeletion anonymizes the user in place and signs them out everywhere.
// Orders stay for bookkeeping.
func (s *GDPRService) ProcessDeletion(ctx context.Context, id int64) error {
	req, err := s.processing(ctx, id, entity.DataRequestDeletion)
	if req == nil || err != nil {
		return err
	}

	scrambled, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.AnonymizeUser(ctx, req.UserID, string(scrambled)); err != nil {
		logger.Error().Err(err).Msgf("Error anonymizing user %d", req.UserID)
		return translate(err)
	}
	if err := s.sessions.RevokeSessions(ctx, req.UserID); err != nil {
		logger.Error().Err(err).Msgf("Error revoking sessions of user %d", req.UserID)
		return err
	}

	now := s.now()
	req.Status = entity.DataRequestCompleted
	req.ProcessedAt = &now
	return s.requestRepo.UpdateDataRequest(ctx, req)
}

func (s *GDPRService) processing(ctx context.Context, id int64, reqType entity.DataRequestType) (*entity.DataRequest, error) {
	req, err := s.requestRepo.GetDataRequest(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if req.Type != reqType {
		return nil, fmt.Errorf("data request %d is a %s request", id, req.Type)
	}
	if req.Status != entity.DataRequestProcessing {
		logger.Info().Msgf("Skipping data request %d in status %s", id, req.Status)
		return nil, nil
	}
	return req, nil
}

// Overdue lists open requests older than the configured threshold.
func (s *GDPRService) Overdue(ctx context.Context) ([]*entity.DataRequest, error) {
	now := s.now()
	before := now.Add(-s.overdueAfter)
	reqs, err := s.requestRepo.GetDataRequests(ctx, repository.DataRequestFilter{CreatedBefore: &before})
	if err != nil {
		return nil, err
	}
	overdue := make([]*entity.DataRequest, 0, len(reqs))
	for _, req := range reqs {
		if req.IsOverdue(s.overdueAfter, now) {
			overdue = append(overdue, req)
		}
	}
	return overdue, nil
}

// Download returns the export file of the owner while it has not expired.
func (s *GDPRService) Download(ctx context.Context, userID, id int64) ([]byte, string, error) {
	req, err := s.requestRepo.GetDataRequest(ctx, id)
	if err != nil {
		return nil, "", translate(err)
	}
	if req.UserID != userID {
		return nil, "", ErrForbidden
	}
	if req.Type != entity.DataRequestExport || !req.ExportAvailable(s.now()) {
		return nil, "", ErrNotFound
	}
	data, err := s.files.Read(ctx, req.ExportPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Error reading export of data request %d", req.ID)
		return nil, "", ErrNotFound
	}
	return data, fmt.Sprintf("smartmart-data-export-%d.json", req.ID), nil
}

// PurgeExpiredExports deletes export files past their expiry and forgets their path.
func (s *GDPRService) PurgeExpiredExports(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.requestRepo.GetDataRequests(ctx, repository.DataRequestFilter{ExpiredBefore: &now})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, req := range expired {
		if err := s.files.Delete(ctx, req.ExportPath); err != nil {
			logger.Error().Err(err).Msgf("Error deleting export file of data request %d", req.ID)
			continue
		}
		req.ExportPath = ""
		if err := s.requestRepo.UpdateDataRequest(ctx, req); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *GDPRService) notify(ctx context.Context, userID int64, kind, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, title, body); err != nil {
		logger.Error().Err(err).Msgf("Error notifying user %d about %s", userID, kind)
	}
}
