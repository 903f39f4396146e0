package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var tables = []struct {
	name  string
	query string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			phone VARCHAR(50) NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'customer',
			anonymized_at DATETIME NULL,
			created_at DATETIME NOT NULL
		);`},
	{"categories", `
		CREATE TABLE IF NOT EXISTS categories (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			parent_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			INDEX idx_categories_parent (parent_id)
		);`},
	{"products", `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			category_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			sku VARCHAR(64) NOT NULL UNIQUE,
			description TEXT NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			tags VARCHAR(512) NOT NULL DEFAULT '',
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_products_category (category_id),
			CONSTRAINT chk_products_quantity CHECK (quantity >= 0)
		);`},
	{"product_variants", `
		CREATE TABLE IF NOT EXISTS product_variants (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			product_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			sku VARCHAR(64) NOT NULL UNIQUE,
			price DECIMAL(12,2) NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE,
			CONSTRAINT chk_variants_quantity CHECK (quantity >= 0)
		);`},
	{"product_views", `
		CREATE TABLE IF NOT EXISTS product_views (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			viewed_at DATETIME NOT NULL,
			INDEX idx_views_user (user_id, viewed_at),
			INDEX idx_views_product (product_id, viewed_at)
		);`},
	{"carts", `
		CREATE TABLE IF NOT EXISTS carts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NULL UNIQUE,
			session_id VARCHAR(64) NULL UNIQUE,
			subtotal DECIMAL(12,2) NOT NULL DEFAULT 0,
			total_items INT NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`},
	{"cart_items", `
		CREATE TABLE IF NOT EXISTS cart_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			cart_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			variant_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			sku VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL,
			total_price DECIMAL(12,2) NOT NULL,
			FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE
		);`},
	{"coupons", `
		CREATE TABLE IF NOT EXISTS coupons (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			code VARCHAR(64) NOT NULL UNIQUE,
			type VARCHAR(20) NOT NULL,
			value DECIMAL(12,2) NOT NULL,
			min_subtotal DECIMAL(12,2) NOT NULL DEFAULT 0,
			usage_limit INT NOT NULL DEFAULT 0,
			used_count INT NOT NULL DEFAULT 0,
			expires_at DATETIME NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1
		);`},
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_number VARCHAR(40) NOT NULL UNIQUE,
			user_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			payment_reference VARCHAR(255) NOT NULL DEFAULT '',
			subtotal DECIMAL(12,2) NOT NULL,
			tax DECIMAL(12,2) NOT NULL,
			shipping DECIMAL(12,2) NOT NULL,
			discount DECIMAL(12,2) NOT NULL,
			total DECIMAL(12,2) NOT NULL,
			coupon_code VARCHAR(64) NOT NULL DEFAULT '',
			shipping_address TEXT NOT NULL,
			notes TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			cancelled_at DATETIME NULL,
			INDEX idx_orders_user (user_id),
			INDEX idx_orders_reference (payment_reference)
		);`},
	{"order_items", `
		CREATE TABLE IF NOT EXISTS order_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			variant_id BIGINT NULL,
			product_name VARCHAR(255) NOT NULL,
			sku VARCHAR(64) NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL,
			quantity INT NOT NULL,
			total_price DECIMAL(12,2) NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE,
			INDEX idx_order_items_product (product_id)
		);`},
	{"subscription_plans", `
		CREATE TABLE IF NOT EXISTS subscription_plans (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			price DECIMAL(12,2) NOT NULL,
			` + "`interval`" + ` VARCHAR(10) NOT NULL,
			interval_count INT NOT NULL DEFAULT 1,
			stripe_price_id VARCHAR(255) NOT NULL DEFAULT '',
			is_active TINYINT(1) NOT NULL DEFAULT 1
		);`},
	{"subscriptions", `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			plan_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			stripe_subscription_id VARCHAR(255) NOT NULL DEFAULT '',
			stripe_customer_id VARCHAR(255) NOT NULL DEFAULT '',
			current_period_start DATETIME NOT NULL,
			current_period_end DATETIME NOT NULL,
			cancel_at_period_end TINYINT(1) NOT NULL DEFAULT 0,
			paused_at DATETIME NULL,
			cancelled_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_subscriptions_user (user_id),
			INDEX idx_subscriptions_stripe (stripe_subscription_id)
		);`},
	{"subscription_boxes", `
		CREATE TABLE IF NOT EXISTS subscription_boxes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			subscription_id BIGINT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE KEY uniq_box_period (subscription_id, period_start)
		);`},
	{"webhook_events", `
		CREATE TABLE IF NOT EXISTS webhook_events (
			event_id VARCHAR(128) PRIMARY KEY,
			event_type VARCHAR(64) NOT NULL,
			processed_at DATETIME NOT NULL
		);`},
	{"data_requests", `
		CREATE TABLE IF NOT EXISTS data_requests (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			reason TEXT NOT NULL,
			admin_notes TEXT NOT NULL,
			export_path VARCHAR(512) NOT NULL DEFAULT '',
			expires_at DATETIME NULL,
			processed_by BIGINT NULL,
			processed_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_data_requests_user (user_id, type, status)
		);`},
	{"notifications", `
		CREATE TABLE IF NOT EXISTS notifications (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			type VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			read_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_notifications_user (user_id, read_at)
		);`},
	{"settings", `
		CREATE TABLE IF NOT EXISTS settings (
			` + "`key`" + ` VARCHAR(191) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`},
}

// AutoMigrate creates every table that does not exist yet, retrying each
// statement while the database is still coming up.
func AutoMigrate(ctx context.Context, db *sql.DB, retries int) error {
	for _, table := range tables {
		_, err := db.ExecContext(ctx, table.query)
		for i := 0; err != nil && i < retries; i++ {
			time.Sleep(1 * time.Second)
			_, err = db.ExecContext(ctx, table.query)
		}
		if err != nil {
			return fmt.Errorf("create table %s: %w", table.name, err)
		}
	}
	return nil
}
