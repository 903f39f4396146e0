package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  *int64          `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Tags        []string        `json:"tags"`
	IsActive    bool            `json:"is_active"`
	Variants    []Variant       `json:"variants,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Variant is a purchasable option of a product with its own price and stock.
type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// InStock reports whether qty units can be sold, taking the variant into account when given.
func (p *Product) InStock(variantID *int64, qty int) bool {
	if variantID == nil {
		return p.Quantity >= qty
	}
	for _, v := range p.Variants {
		if v.ID == *variantID {
			return v.Quantity >= qty
		}
	}
	return false
}

// PriceFor returns the unit price of the product or of one of its variants.
func (p *Product) PriceFor(variantID *int64) (decimal.Decimal, string, bool) {
	if variantID == nil {
		return p.Price, p.SKU, true
	}
	for _, v := range p.Variants {
		if v.ID == *variantID {
			return v.Price, v.SKU, true
		}
	}
	return decimal.Zero, "", false
}

type ProductFilter struct {
	CategoryID *int64
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

/*
Schema MySQL for product tables:
CREATE TABLE products (
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
	updated_at DATETIME NOT NULL
);
*/
