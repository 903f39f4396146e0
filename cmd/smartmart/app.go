package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartmart/internal/config"
	"smartmart/internal/llm"
	"smartmart/internal/payment"
	"smartmart/internal/producer"
	"smartmart/internal/repository"
	"smartmart/internal/search"
	"smartmart/internal/service"
	"smartmart/internal/storage"
)

func connectDB(dsn string, retries int) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i <= retries; i++ {
		db, err = sql.Open("mysql", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info().Msg("Connected to DB")
				return db, nil
			}
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB", i+1)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB after %d retries: %w", retries, err)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}

type repositories struct {
	users         *repository.UserRepository
	categories    *repository.CategoryRepository
	products      *repository.ProductRepository
	carts         *repository.CartRepository
	orders        *repository.OrderRepository
	subscriptions *repository.SubscriptionRepository
	dataRequests  *repository.DataRequestRepository
	notifications *repository.NotificationRepository
	views         *repository.RecommendationRepository
	settings      *repository.SettingRepository
	coupons       *repository.CouponRepository
	store         *repository.Store
}

func newRepositories(db *sql.DB) repositories {
	return repositories{
		users:         repository.NewUserRepository(db),
		categories:    repository.NewCategoryRepository(db),
		products:      repository.NewProductRepository(db),
		carts:         repository.NewCartRepository(db),
		orders:        repository.NewOrderRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
		dataRequests:  repository.NewDataRequestRepository(db),
		notifications: repository.NewNotificationRepository(db),
		views:         repository.NewRecommendationRepository(db),
		settings:      repository.NewSettingRepository(db),
		coupons:       repository.NewCouponRepository(db),
		store:         repository.NewStore(db),
	}
}

// app holds every service of a running process and the resources to release on exit.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	rdb   *redis.Client
	repos repositories

	writers []*kafka.Writer

	stripe        *payment.Stripe
	users         *service.UserService
	products      *service.ProductService
	categories    *service.CategoryService
	carts         *service.CartService
	checkout      *service.CheckoutService
	orders        *service.OrderService
	recommend     *service.RecommendationService
	subscriptions *service.SubscriptionService
	notifications *service.NotificationService
	gdpr          *service.GDPRService
	settings      *service.SettingService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := connectDB(cfg.DB.DSN, cfg.DB.Retries)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, caches and sessions will fail until it is reachable")
	}

	a := &app{cfg: cfg, db: db, rdb: rdb, repos: newRepositories(db)}

	brokers := cfg.Kafka.BrokerURLs()
	orderEvents := producer.NewPublisher(a.writer(brokers, cfg.Kafka.OrderTopic))
	jobs := producer.NewPublisher(a.writer(brokers, cfg.Kafka.JobsTopic))
	var broker service.Publisher
	if cfg.Notifications.Broker {
		broker = producer.NewPublisher(a.writer(brokers, cfg.Kafka.NotificationsTopic))
	}

	gateways, err := a.gateways()
	if err != nil {
		a.Close()
		return nil, err
	}

	taxRate, shippingRate, freeShipping, err := cfg.Shop.Rates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("shop rates: %w", err)
	}

	var searcher service.Searcher
	if cfg.Search.Enabled {
		searcher = search.NewSearcher(cfg.Search.Host, cfg.Search.APIKey, cfg.Search.Index)
	}

	var reranker service.Reranker
	if cfg.Recommendation.AI.Enabled {
		ai := cfg.Recommendation.AI
		reranker = llm.NewReranker(ai.Endpoint, ai.APIKey, ai.Model, ai.Timeout)
	}

	files, err := storage.NewLocal(cfg.GDPR.StorageDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("export storage: %w", err)
	}

	var billing service.Billing
	if a.stripe != nil {
		billing = payment.NewStripeBilling(a.stripe)
	}

	r := a.repos
	currency := cfg.Payment.Currency
	a.notifications = service.NewNotificationService(r.notifications, broker, cfg.Notifications.Database)
	a.users = service.NewUserService(r.users, r.orders, rdb, cfg.JWT.Secret, cfg.JWT.TTL)
	a.products = service.NewProductService(r.products, rdb, searcher)
	a.categories = service.NewCategoryService(r.categories)
	a.carts = service.NewCartService(r.carts, r.products)
	pricing := service.NewPricingService(r.coupons, taxRate, shippingRate, freeShipping)
	a.checkout = service.NewCheckoutService(r.store, r.carts, r.products, pricing, gateways, rdb, orderEvents, currency)
	a.orders = service.NewOrderService(r.orders, r.store, gateways, orderEvents, currency)
	a.recommend = service.NewRecommendationService(r.views, r.products, rdb, reranker, cfg.Recommendation.CacheTTL)
	a.subscriptions = service.NewSubscriptionService(r.subscriptions, r.users, billing, jobs, a.notifications)
	a.gdpr = service.NewGDPRService(r.dataRequests, r.users, r.orders, r.subscriptions, r.notifications, files, jobs,
		a.notifications, a.users, cfg.GDPR.ExportTTL, cfg.GDPR.OverdueAfter)
	a.settings = service.NewSettingService(r.settings)
	return a, nil
}

func (a *app) writer(brokers []string, topic string) *kafka.Writer {
	w := config.NewKafkaWriter(brokers, topic)
	a.writers = append(a.writers, w)
	return w
}

// gateways registers every enabled payment method.
func (a *app) gateways() (*payment.Registry, error) {
	cfg := a.cfg.Payment
	var enabled []payment.Gateway

	if cfg.Stripe.Enabled {
		a.stripe = payment.NewStripe(cfg.Stripe.SecretKey)
		enabled = append(enabled, a.stripe)
	}
	if cfg.PayPal.Enabled {
		paypal, err := payment.NewPayPal(cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.Sandbox)
		if err != nil {
			return nil, fmt.Errorf("paypal: %w", err)
		}
		enabled = append(enabled, paypal)
	}
	if cfg.COD.Enabled {
		ceiling, err := cfg.COD.Ceiling()
		if err != nil {
			return nil, fmt.Errorf("cod ceiling: %w", err)
		}
		enabled = append(enabled, payment.NewCashOnDelivery(ceiling))
	}

	registry := payment.NewRegistry(enabled...)
	logger.Info().Strs("methods", registry.Methods()).Msg("Payment methods enabled")
	return registry, nil
}

func (a *app) Close() {
	for _, w := range a.writers {
		if err := w.Close(); err != nil {
			logger.Error().Err(err).Msgf("Error closing kafka writer for %s", w.Topic)
		}
	}
	if err := a.rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing redis")
	}
	if err := a.db.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing DB")
	}
}
