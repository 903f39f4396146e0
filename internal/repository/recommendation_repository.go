package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"smartmart/internal/entity"
)

// RecommendationRepository runs the aggregate queries behind product recommendations.
type RecommendationRepository struct {
	db *sql.DB
}

func NewRecommendationRepository(db *sql.DB) *RecommendationRepository {
	return &RecommendationRepository{db}
}

func (r *RecommendationRepository) queryScores(ctx context.Context, query string, args ...interface{}) ([]entity.ProductScore, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []entity.ProductScore
	for rows.Next() {
		var s entity.ProductScore
		if err := rows.Scan(&s.ProductID, &s.Score); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// CoPurchaseScores scores products in the categories bought by other buyers
// who purchased at least one product the user also purchased.
func (r *RecommendationRepository) CoPurchaseScores(ctx context.Context, userID int64, limit int) ([]entity.ProductScore, error) {
	query := `
		SELECT p.id, COUNT(DISTINCT peer.user_id) AS score
		FROM orders mine
		JOIN order_items my_items ON my_items.order_id = mine.id
		JOIN order_items peer_items ON peer_items.product_id = my_items.product_id
		JOIN orders peer ON peer.id = peer_items.order_id AND peer.user_id <> mine.user_id AND peer.status <> 'cancelled'
		JOIN orders peer_orders ON peer_orders.user_id = peer.user_id AND peer_orders.status <> 'cancelled'
		JOIN order_items bought ON bought.order_id = peer_orders.id
		JOIN products bp ON bp.id = bought.product_id
		JOIN products p ON p.category_id = bp.category_id AND p.is_active = 1
		WHERE mine.user_id = ? AND mine.status <> 'cancelled'
		GROUP BY p.id
		ORDER BY score DESC, p.id
		LIMIT ?`
	return r.queryScores(ctx, query, userID, limit)
}

// ViewedCategoryScores scores products sharing a category with products the user viewed since the given time.
func (r *RecommendationRepository) ViewedCategoryScores(ctx context.Context, userID int64, since time.Time, limit int) ([]entity.ProductScore, error) {
	query := `
		SELECT p.id, COUNT(*) AS score
		FROM product_views v
		JOIN products vp ON vp.id = v.product_id
		JOIN products p ON p.category_id = vp.category_id AND p.is_active = 1 AND p.id <> vp.id
		WHERE v.user_id = ? AND v.viewed_at >= ?
		GROUP BY p.id
		ORDER BY score DESC, p.id
		LIMIT ?`
	return r.queryScores(ctx, query, userID, since, limit)
}

// RecentlyViewedTags returns the tags of products the user viewed since the given time.
func (r *RecommendationRepository) RecentlyViewedTags(ctx context.Context, userID int64, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT p.tags
		FROM product_views v
		JOIN products p ON p.id = v.product_id
		WHERE v.user_id = ? AND v.viewed_at >= ? AND p.tags <> ''`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var tags []string
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, err
		}
		for _, tag := range splitTags(joined) {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags, rows.Err()
}

// ProductsWithTags returns active products carrying any of the tags.
func (r *RecommendationRepository) ProductsWithTags(ctx context.Context, tags []string, limit int) ([]*entity.Product, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	conds := make([]string, len(tags))
	args := make([]interface{}, 0, len(tags)+1)
	for i, tag := range tags {
		conds[i] = "FIND_IN_SET(?, tags) > 0"
		args = append(args, tag)
	}
	args = append(args, limit)

	query := `SELECT ` + productColumns + ` FROM products WHERE is_active = 1 AND (` + strings.Join(conds, " OR ") + `) ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// TrendingScores scores active products by orders*3 + views since the given time.
func (r *RecommendationRepository) TrendingScores(ctx context.Context, since time.Time, limit int) ([]entity.ProductScore, error) {
	query := `
		SELECT p.id, COALESCE(o.cnt, 0) * 3 + COALESCE(v.cnt, 0) AS score
		FROM products p
		LEFT JOIN (
			SELECT oi.product_id, COUNT(DISTINCT oi.order_id) AS cnt
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.created_at >= ? AND o.status <> 'cancelled'
			GROUP BY oi.product_id
		) o ON o.product_id = p.id
		LEFT JOIN (
			SELECT product_id, COUNT(*) AS cnt
			FROM product_views
			WHERE viewed_at >= ?
			GROUP BY product_id
		) v ON v.product_id = p.id
		WHERE p.is_active = 1
		HAVING score > 0
		ORDER BY score DESC, p.id
		LIMIT ?`
	return r.queryScores(ctx, query, since, since, limit)
}

// BoughtTogetherScores scores products that appeared in the same orders as productID.
func (r *RecommendationRepository) BoughtTogetherScores(ctx context.Context, productID int64, limit int) ([]entity.ProductScore, error) {
	query := `
		SELECT other.product_id, COUNT(DISTINCT other.order_id) AS score
		FROM order_items base
		JOIN order_items other ON other.order_id = base.order_id AND other.product_id <> base.product_id
		JOIN products p ON p.id = other.product_id AND p.is_active = 1
		WHERE base.product_id = ?
		GROUP BY other.product_id
		ORDER BY score DESC, other.product_id
		LIMIT ?`
	return r.queryScores(ctx, query, productID, limit)
}

func (r *RecommendationRepository) SameCategoryScores(ctx context.Context, productID int64, limit int) ([]entity.ProductScore, error) {
	query := `
		SELECT p.id, 1 AS score
		FROM products base
		JOIN products p ON p.category_id = base.category_id AND p.id <> base.id AND p.is_active = 1
		WHERE base.id = ?
		ORDER BY p.id DESC
		LIMIT ?`
	return r.queryScores(ctx, query, productID, limit)
}

func (r *RecommendationRepository) PurchasedProductIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT oi.product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = ? AND o.status <> 'cancelled'`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
