package repository

import (
	"context"
	"database/sql"

	"smartmart/internal/entity"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db}
}

func (r *CategoryRepository) GetCategory(ctx context.Context, id int64) (*entity.Category, error) {
	var (
		category entity.Category
		parentID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, parent_id, name, slug FROM categories WHERE id = ?`, id).
		Scan(&category.ID, &parentID, &category.Name, &category.Slug)
	if err != nil {
		return nil, notFound(err)
	}
	category.ParentID = int64Ptr(parentID)
	return &category, nil
}

func (r *CategoryRepository) GetCategories(ctx context.Context) ([]entity.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, parent_id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []entity.Category
	for rows.Next() {
		var (
			category entity.Category
			parentID sql.NullInt64
		)
		if err := rows.Scan(&category.ID, &parentID, &category.Name, &category.Slug); err != nil {
			return nil, err
		}
		category.ParentID = int64Ptr(parentID)
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *CategoryRepository) CreateCategory(ctx context.Context, category *entity.Category) (*entity.Category, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO categories (parent_id, name, slug) VALUES (?, ?, ?)`,
		nullInt64(category.ParentID), category.Name, category.Slug)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	category.ID = id
	return category, nil
}

func (r *CategoryRepository) UpdateCategory(ctx context.Context, category *entity.Category) (*entity.Category, error) {
	_, err := r.db.ExecContext(ctx, `UPDATE categories SET parent_id = ?, name = ?, slug = ? WHERE id = ?`,
		nullInt64(category.ParentID), category.Name, category.Slug, category.ID)
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes a category, moving its children and products up to its parent.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id int64) error {
	category, err := r.GetCategory(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	parent := nullInt64(category.ParentID)

	if _, err = tx.ExecContext(ctx, `UPDATE categories SET parent_id = ? WHERE parent_id = ?`, parent, id); err != nil {
		tx.Rollback()
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE products SET category_id = ? WHERE category_id = ?`, parent, id); err != nil {
		tx.Rollback()
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
