package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smartmart/internal/entity"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db}
}

const userColumns = `id, name, email, password, phone, address, role, anonymized_at, created_at`

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		user         entity.User
		anonymizedAt sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Phone, &user.Address, &user.Role,
		&anonymizedAt, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.AnonymizedAt = timePtr(anonymizedAt)
	return &user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *UserRepository) GetUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) CreateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	user.CreatedAt = time.Now().UTC()
	query := `INSERT INTO users (name, email, password, phone, address, role, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, user.Name, user.Email, user.Password, user.Phone, user.Address, user.Role, user.CreatedAt)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	user.ID = id
	return user, nil
}

// AnonymizeUser overwrites personal fields in place and removes data that only
// describes the person (cart, views, notifications). Orders stay untouched so
// historical totals remain intact.
func (r *UserRepository) AnonymizeUser(ctx context.Context, userID int64, scrambledPassword string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET name = ?, email = ?, password = ?, phone = '', address = '', anonymized_at = ? WHERE id = ?`,
		"Deleted User", fmt.Sprintf("deleted-%d@anonymized.invalid", userID), scrambledPassword, now, userID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	statements := []string{
		`DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)`,
		`DELETE FROM carts WHERE user_id = ?`,
		`DELETE FROM product_views WHERE user_id = ?`,
		`DELETE FROM notifications WHERE user_id = ?`,
		`UPDATE orders SET shipping_address = '', notes = '' WHERE user_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			tx.Rollback()
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = ?, cancelled_at = ? WHERE user_id = ? AND status <> ?`,
		entity.SubscriptionCancelled, now, userID, entity.SubscriptionCancelled)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
