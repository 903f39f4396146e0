package repository

import (
	"context"
	"database/sql"
	"time"

	"smartmart/internal/entity"
)

type CartRepository struct {
	db DBTX
}

func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db}
}

func (r *CartRepository) GetCartByOwner(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error) {
	var (
		cart      entity.Cart
		userID    sql.NullInt64
		sessionID sql.NullString
		row       *sql.Row
	)
	query := `SELECT id, user_id, session_id, subtotal, total_items, updated_at FROM carts`
	if owner.UserID != nil {
		row = r.db.QueryRowContext(ctx, query+` WHERE user_id = ?`, *owner.UserID)
	} else {
		row = r.db.QueryRowContext(ctx, query+` WHERE session_id = ? AND user_id IS NULL`, owner.SessionID)
	}

	if err := row.Scan(&cart.ID, &userID, &sessionID, &cart.Subtotal, &cart.TotalItems, &cart.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	cart.UserID = int64Ptr(userID)
	cart.SessionID = sessionID.String

	items, err := r.getCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return &cart, nil
}

func (r *CartRepository) getCartItems(ctx context.Context, cartID int64) ([]entity.CartItem, error) {
	query := `SELECT id, cart_id, product_id, variant_id, name, sku, quantity, unit_price, total_price FROM cart_items WHERE cart_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []entity.CartItem{}
	for rows.Next() {
		var (
			item      entity.CartItem
			variantID sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &variantID, &item.Name, &item.SKU,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		item.VariantID = int64Ptr(variantID)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CartRepository) CreateCart(ctx context.Context, cart *entity.Cart) (*entity.Cart, error) {
	var sessionID sql.NullString
	if cart.SessionID != "" {
		sessionID = sql.NullString{String: cart.SessionID, Valid: true}
	}
	cart.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `INSERT INTO carts (user_id, session_id, subtotal, total_items, updated_at) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(cart.UserID), sessionID, cart.Subtotal, cart.TotalItems, cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cart.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []entity.CartItem{}
	}
	return cart, nil
}

func (r *CartRepository) InsertCartItem(ctx context.Context, item *entity.CartItem) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO cart_items (cart_id, product_id, variant_id, name, sku, quantity, unit_price, total_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.CartID, item.ProductID, nullInt64(item.VariantID), item.Name, item.SKU, item.Quantity, item.UnitPrice, item.TotalPrice)
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

func (r *CartRepository) UpdateCartItem(ctx context.Context, item *entity.CartItem) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cart_items SET cart_id = ?, quantity = ?, unit_price = ?, total_price = ? WHERE id = ?`,
		item.CartID, item.Quantity, item.UnitPrice, item.TotalPrice, item.ID)
	return err
}

func (r *CartRepository) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND cart_id = ?`, itemID, cartID)
	return err
}

// ClearCart empties the cart and zeroes its totals.
func (r *CartRepository) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE carts SET subtotal = 0, total_items = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), cartID)
	return err
}

func (r *CartRepository) SaveCartTotals(ctx context.Context, cart *entity.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `UPDATE carts SET subtotal = ?, total_items = ?, updated_at = ? WHERE id = ?`,
		cart.Subtotal, cart.TotalItems, cart.UpdatedAt, cart.ID)
	return err
}

func (r *CartRepository) AssignCartToUser(ctx context.Context, cartID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE carts SET user_id = ?, session_id = NULL WHERE id = ?`, userID, cartID)
	return err
}

func (r *CartRepository) DeleteCart(ctx context.Context, cartID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID)
	return err
}
