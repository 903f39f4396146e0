package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
	"smartmart/internal/repository"
)

type ProductRepository interface {
	GetProductByID(ctx context.Context, id int64) (*entity.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]*entity.Product, error)
	GetProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	RecordView(ctx context.Context, userID, productID int64) error
}

type CategoryRepository interface {
	GetCategory(ctx context.Context, id int64) (*entity.Category, error)
	GetCategories(ctx context.Context) ([]entity.Category, error)
	CreateCategory(ctx context.Context, category *entity.Category) (*entity.Category, error)
	UpdateCategory(ctx context.Context, category *entity.Category) (*entity.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type CartRepository interface {
	GetCartByOwner(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error)
	CreateCart(ctx context.Context, cart *entity.Cart) (*entity.Cart, error)
	InsertCartItem(ctx context.Context, item *entity.CartItem) error
	UpdateCartItem(ctx context.Context, item *entity.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error
	SaveCartTotals(ctx context.Context, cart *entity.Cart) error
	AssignCartToUser(ctx context.Context, cartID, userID int64) error
	DeleteCart(ctx context.Context, cartID int64) error
}

type CouponRepository interface {
	GetCouponByCode(ctx context.Context, code string) (*entity.Coupon, error)
}

type OrderRepository interface {
	GetOrderByID(ctx context.Context, id int64) (*entity.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (*entity.Order, error)
	GetOrders(ctx context.Context, filter repository.OrderFilter, withItems bool) ([]*entity.Order, error)
	OrderSummary(ctx context.Context, userID int64) (int, decimal.Decimal, error)
	UpdateOrderPayment(ctx context.Context, id int64, status entity.OrderStatus, payment entity.PaymentStatus, reference string) error
}

// TxRunner is implemented by repository.Store.
type TxRunner interface {
	ExecTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

type RecommendationRepository interface {
	CoPurchaseScores(ctx context.Context, userID int64, limit int) ([]entity.ProductScore, error)
	ViewedCategoryScores(ctx context.Context, userID int64, since time.Time, limit int) ([]entity.ProductScore, error)
	RecentlyViewedTags(ctx context.Context, userID int64, since time.Time) ([]string, error)
	ProductsWithTags(ctx context.Context, tags []string, limit int) ([]*entity.Product, error)
	TrendingScores(ctx context.Context, since time.Time, limit int) ([]entity.ProductScore, error)
	BoughtTogetherScores(ctx context.Context, productID int64, limit int) ([]entity.ProductScore, error)
	SameCategoryScores(ctx context.Context, productID int64, limit int) ([]entity.ProductScore, error)
	PurchasedProductIDs(ctx context.Context, userID int64) ([]int64, error)
}

type SubscriptionRepository interface {
	GetPlans(ctx context.Context, activeOnly bool) ([]entity.SubscriptionPlan, error)
	GetPlan(ctx context.Context, id int64) (*entity.SubscriptionPlan, error)
	GetSubscription(ctx context.Context, id int64) (*entity.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeID string) (*entity.Subscription, error)
	GetSubscriptions(ctx context.Context, userID *int64) ([]*entity.Subscription, error)
	CreateSubscription(ctx context.Context, s *entity.Subscription) (*entity.Subscription, error)
	UpdateSubscription(ctx context.Context, s *entity.Subscription) error
	CreateBox(ctx context.Context, box *entity.SubscriptionBox) (bool, error)
	GetBoxes(ctx context.Context, subscriptionID int64) ([]entity.SubscriptionBox, error)
}

type DataRequestRepository interface {
	CreateDataRequest(ctx context.Context, req *entity.DataRequest) (*entity.DataRequest, error)
	GetDataRequest(ctx context.Context, id int64) (*entity.DataRequest, error)
	FindOpenDataRequest(ctx context.Context, userID int64, reqType entity.DataRequestType) (*entity.DataRequest, error)
	GetDataRequests(ctx context.Context, filter repository.DataRequestFilter) ([]*entity.DataRequest, error)
	UpdateDataRequest(ctx context.Context, req *entity.DataRequest) error
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetUsers(ctx context.Context, limit, offset int) ([]*entity.User, error)
	CreateUser(ctx context.Context, user *entity.User) (*entity.User, error)
	AnonymizeUser(ctx context.Context, userID int64, scrambledPassword string) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *entity.Notification) error
	GetNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

type SettingRepository interface {
	GetSettings(ctx context.Context) ([]entity.Setting, error)
	UpsertSettings(ctx context.Context, values map[string]string) error
}

// Publisher writes one keyed JSON message to a topic.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

type Gateways interface {
	Get(method string) (payment.Gateway, bool)
}

// Billing manages recurring subscriptions at the payment provider.
type Billing interface {
	Subscribe(ctx context.Context, req payment.SubscribeRequest) (payment.BillingSubscription, error)
	Pause(ctx context.Context, subscriptionID string) error
	Resume(ctx context.Context, subscriptionID string) error
	Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]int64, error)
	IndexProducts(ctx context.Context, products ...*entity.Product) error
	RemoveProduct(ctx context.Context, id int64) error
}

// Reranker orders recommendation candidates; it may return ids outside the candidate set.
type Reranker interface {
	Rerank(ctx context.Context, userContext string, candidates []*entity.Product) ([]int64, error)
}

// SessionRevoker ends every live session of a user.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID int64) error
}

type FileStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
