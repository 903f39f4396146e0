package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"smartmart/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	productCacheTTL     = 1 * time.Minute
	defaultProductLimit = 20
	maxProductLimit     = 100
)

type ProductService struct {
	productRepo ProductRepository
	rdb         *redis.Client
	searcher    Searcher
}

// NewProductService creates a ProductService. searcher may be nil when search is disabled.
func NewProductService(productRepo ProductRepository, rdb *redis.Client, searcher Searcher) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		rdb:         rdb,
		searcher:    searcher,
	}
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// GetProduct reads through the redis cache.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	key := productCacheKey(id)
	cached, err := s.rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error().Err(err).Msgf("Error getting product %d from cache", id)
	}

	if cached != "" {
		var product entity.Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
		logger.Warn().Msgf("Discarding unreadable cache entry for product %d", id)
	}

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	s.cacheProduct(ctx, product)
	return product, nil
}

func (s *ProductService) cacheProduct(ctx context.Context, product *entity.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		logger.Error().Err(err).Msgf("Error marshalling product %d", product.ID)
		return
	}
	if err := s.rdb.Set(ctx, productCacheKey(product.ID), data, productCacheTTL).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error setting product %d in cache", product.ID)
	}
}

func (s *ProductService) evictProduct(ctx context.Context, id int64) {
	if err := s.rdb.Del(ctx, productCacheKey(id)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error deleting product %d from cache", id)
	}
}

func normalizeLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (s *ProductService) ListProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error) {
	filter.Limit = normalizeLimit(filter.Limit, defaultProductLimit, maxProductLimit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.productRepo.GetProducts(ctx, filter)
}

// Search queries the search index and falls back to the database when the index is
// disabled or failing.
func (s *ProductService) Search(ctx context.Context, query string, limit int) ([]*entity.Product, error) {
	limit = normalizeLimit(limit, defaultProductLimit, maxProductLimit)
	query = strings.TrimSpace(query)
	if query == "" {
		return []*entity.Product{}, nil
	}

	if s.searcher != nil {
		ids, err := s.searcher.Search(ctx, query, limit)
		if err == nil {
			products, err := s.productRepo.GetProductsByIDs(ctx, ids)
			if err == nil {
				return activeOnly(products), nil
			}
			logger.Error().Err(err).Msg("Error hydrating search hits")
		} else {
			logger.Warn().Err(err).Msgf("Search index unavailable, falling back to database for %q", query)
		}
	}

	return s.productRepo.GetProducts(ctx, entity.ProductFilter{Search: query, ActiveOnly: true, Limit: limit})
}

func activeOnly(products []*entity.Product) []*entity.Product {
	out := make([]*entity.Product, 0, len(products))
	for _, p := range products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

func validateProduct(p *entity.Product) error {
	fields := map[string]string{}
	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "is required"
	}
	if strings.TrimSpace(p.SKU) == "" {
		fields["sku"] = "is required"
	}
	if p.Price.IsNegative() {
		fields["price"] = "must not be negative"
	}
	if p.Quantity < 0 {
		fields["quantity"] = "must not be negative"
	}
	for i, v := range p.Variants {
		if v.Price.IsNegative() || v.Quantity < 0 {
			fields[fmt.Sprintf("variants.%d", i)] = "price and quantity must not be negative"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}
	return nil
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *ProductService) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	created, err := s.productRepo.CreateProduct(ctx, product)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, err
	}
	s.index(ctx, created)
	return created, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	updated, err := s.productRepo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, translate(err)
	}
	s.evictProduct(ctx, updated.ID)
	s.index(ctx, updated)
	return updated, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.productRepo.DeleteProduct(ctx, id); err != nil {
		return translate(err)
	}
	s.evictProduct(ctx, id)
	if s.searcher != nil {
		if err := s.searcher.RemoveProduct(ctx, id); err != nil {
			logger.Error().Err(err).Msgf("Error removing product %d from search index", id)
		}
	}
	return nil
}

func (s *ProductService) index(ctx context.Context, product *entity.Product) {
	if s.searcher == nil {
		return
	}
	if err := s.searcher.IndexProducts(ctx, product); err != nil {
		logger.Error().Err(err).Msgf("Error indexing product %d", product.ID)
	}
}

// WarmCache loads every active product into the cache and returns how many were stored.
func (s *ProductService) WarmCache(ctx context.Context) (int, error) {
	warmed := 0
	for offset := 0; ; offset += maxProductLimit {
		products, err := s.productRepo.GetProducts(ctx, entity.ProductFilter{ActiveOnly: true, Limit: maxProductLimit, Offset: offset})
		if err != nil {
			logger.Error().Err(err).Msg("Error getting products")
			return warmed, err
		}
		for _, product := range products {
			s.cacheProduct(ctx, product)
			warmed++
		}
		if len(products) < maxProductLimit {
			return warmed, nil
		}
	}
}

// Reindex pushes every active product to the search index.
func (s *ProductService) Reindex(ctx context.Context) (int, error) {
	if s.searcher == nil {
		return 0, nil
	}
	indexed := 0
	for offset := 0; ; offset += maxProductLimit {
		products, err := s.productRepo.GetProducts(ctx, entity.ProductFilter{ActiveOnly: true, Limit: maxProductLimit, Offset: offset})
		if err != nil {
			return indexed, err
		}
		if len(products) > 0 {
			if err := s.searcher.IndexProducts(ctx, products...); err != nil {
				return indexed, err
			}
			indexed += len(products)
		}
		if len(products) < maxProductLimit {
			return indexed, nil
		}
	}
}
