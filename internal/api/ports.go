package api

import (
	"context"

	"smartmart/internal/entity"
	"smartmart/internal/repository"
	"smartmart/internal/service"
)

type UserService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*entity.User, error)
	Login(ctx context.Context, email, password string) (string, *entity.User, error)
	ValidateSession(ctx context.Context, claims *entity.JwtCustomClaims) error
	Logout(ctx context.Context, claims *entity.JwtCustomClaims) error
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

type ProductService interface {
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	ListProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error)
	Search(ctx context.Context, query string, limit int) ([]*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	WarmCache(ctx context.Context) (int, error)
	Reindex(ctx context.Context) (int, error)
}

type CategoryService interface {
	Tree(ctx context.Context) ([]*entity.Category, error)
	Create(ctx context.Context, category *entity.Category) (*entity.Category, error)
	Update(ctx context.Context, category *entity.Category) (*entity.Category, error)
	Delete(ctx context.Context, id int64) error
}

type CartService interface {
	Get(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error)
	AddItem(ctx context.Context, owner entity.CartOwner, productID int64, variantID *int64, qty int) (*entity.Cart, error)
	UpdateItem(ctx context.Context, owner entity.CartOwner, itemID int64, qty int) (*entity.Cart, error)
	RemoveItem(ctx context.Context, owner entity.CartOwner, itemID int64) (*entity.Cart, error)
	Clear(ctx context.Context, owner entity.CartOwner) error
	MergeGuestCart(ctx context.Context, sessionID string, userID int64) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*entity.Order, error)
}

type OrderService interface {
	List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error)
	ListForUser(ctx context.Context, userID int64, filter repository.OrderFilter) ([]*entity.Order, error)
	Get(ctx context.Context, id int64) (*entity.Order, error)
	GetForUser(ctx context.Context, userID, id int64) (*entity.Order, error)
	UpdateStatus(ctx context.Context, id int64, status entity.OrderStatus) (*entity.Order, error)
	CancelForUser(ctx context.Context, userID, id int64) (*entity.Order, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status entity.PaymentStatus) (*entity.Order, error)
}

type RecommendationService interface {
	RecordView(ctx context.Context, userID, productID int64) error
	ForUser(ctx context.Context, userID int64, limit int) ([]*entity.Product, error)
	ForProduct(ctx context.Context, productID int64, limit int) ([]*entity.Product, error)
	Trending(ctx context.Context, limit int) ([]*entity.Product, error)
}

type SubscriptionService interface {
	Plans(ctx context.Context) ([]entity.SubscriptionPlan, error)
	ListForUser(ctx context.Context, userID int64) ([]*entity.Subscription, error)
	List(ctx context.Context) ([]*entity.Subscription, error)
	Boxes(ctx context.Context, userID, subscriptionID int64) ([]entity.SubscriptionBox, error)
	Subscribe(ctx context.Context, userID, planID int64, paymentMethod string) (*entity.Subscription, error)
	Pause(ctx context.Context, userID, id int64) (*entity.Subscription, error)
	Resume(ctx context.Context, userID, id int64) (*entity.Subscription, error)
	Cancel(ctx context.Context, userID, id int64, atPeriodEnd bool) (*entity.Subscription, error)
}

type NotificationService interface {
	List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

type GDPRService interface {
	Submit(ctx context.Context, userID int64, reqType entity.DataRequestType, reason string) (*entity.DataRequest, error)
	ListForUser(ctx context.Context, userID int64) ([]*entity.DataRequest, error)
	List(ctx context.Context, status entity.DataRequestStatus) ([]*entity.DataRequest, error)
	Transition(ctx context.Context, adminID, id int64, status entity.DataRequestStatus, notes string) (*entity.DataRequest, error)
	Overdue(ctx context.Context) ([]*entity.DataRequest, error)
	Download(ctx context.Context, userID, id int64) ([]byte, string, error)
}

type SettingService interface {
	All(ctx context.Context) ([]entity.Setting, error)
	Set(ctx context.Context, key, value string) error
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) (int, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}
