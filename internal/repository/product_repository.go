package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"smartmart/internal/entity"
)

type ProductRepository struct {
	db DBTX
}

func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db}
}

const productColumns = `id, category_id, name, slug, sku, description, price, quantity, tags, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var (
		product    entity.Product
		categoryID sql.NullInt64
		tags       string
	)
	err := row.Scan(&product.ID, &categoryID, &product.Name, &product.Slug, &product.SKU, &product.Description,
		&product.Price, &product.Quantity, &tags, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	product.CategoryID = int64Ptr(categoryID)
	product.Tags = splitTags(tags)
	return &product, nil
}

func splitTags(tags string) []string {
	if tags == "" {
		return []string{}
	}
	return strings.Split(tags, ",")
}

func joinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return strings.Join(cleaned, ",")
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}

	variants, err := r.getVariants(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Variants = variants

	return product, nil
}

func (r *ProductRepository) getVariants(ctx context.Context, productID int64) ([]entity.Variant, error) {
	query := `SELECT id, product_id, name, sku, price, quantity FROM product_variants WHERE product_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []entity.Variant
	for rows.Next() {
		var v entity.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price, &v.Quantity); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// GetProductsByIDs returns the products in the order of ids, skipping ids that do not exist.
func (r *ProductRepository) GetProductsByIDs(ctx context.Context, ids []int64) ([]*entity.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + placeholders + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*entity.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		byID[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	products := make([]*entity.Product, 0, len(byID))
	for _, id := range ids {
		if product, ok := byID[id]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}

func (r *ProductRepository) GetProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1 = 1`
	var args []interface{}

	if filter.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *filter.CategoryID)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query += ` AND (name LIKE ? OR description LIKE ? OR tags LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

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

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	now := time.Now().UTC()
	query := `INSERT INTO products (category_id, name, slug, sku, description, price, quantity, tags, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, nullInt64(product.CategoryID), product.Name, product.Slug, product.SKU,
		product.Description, product.Price, product.Quantity, joinTags(product.Tags), product.IsActive, now, now)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for i := range product.Variants {
		v := &product.Variants[i]
		res, err := r.db.ExecContext(ctx, `INSERT INTO product_variants (product_id, name, sku, price, quantity) VALUES (?, ?, ?, ?, ?)`,
			id, v.Name, v.SKU, v.Price, v.Quantity)
		if err != nil {
			return nil, err
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		v.ProductID = id
	}

	product.ID = id
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	product.UpdatedAt = time.Now().UTC()
	query := `UPDATE products SET category_id = ?, name = ?, slug = ?, sku = ?, description = ?, price = ?, quantity = ?, tags = ?, is_active = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, nullInt64(product.CategoryID), product.Name, product.Slug, product.SKU,
		product.Description, product.Price, product.Quantity, joinTags(product.Tags), product.IsActive, product.UpdatedAt, product.ID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return product, nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = ?`, id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock removes qty units in a single conditional UPDATE so that two
// concurrent buyers can never both take the last unit.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error {
	var (
		res sql.Result
		err error
	)
	if variantID != nil {
		res, err = r.db.ExecContext(ctx, `UPDATE product_variants SET quantity = quantity - ? WHERE id = ? AND product_id = ? AND quantity >= ?`,
			qty, *variantID, productID, qty)
	} else {
		res, err = r.db.ExecContext(ctx, `UPDATE products SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`,
			qty, productID, qty)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error {
	var err error
	if variantID != nil {
		_, err = r.db.ExecContext(ctx, `UPDATE product_variants SET quantity = quantity + ? WHERE id = ? AND product_id = ?`, qty, *variantID, productID)
	} else {
		_, err = r.db.ExecContext(ctx, `UPDATE products SET quantity = quantity + ? WHERE id = ?`, qty, productID)
	}
	return err
}

func (r *ProductRepository) RecordView(ctx context.Context, userID, productID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO product_views (user_id, product_id, viewed_at) VALUES (?, ?, ?)`,
		userID, productID, time.Now().UTC())
	return err
}
