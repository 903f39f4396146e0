package repository

import (
	"context"
	"database/sql"

	"smartmart/internal/entity"
)

type CouponRepository struct {
	db DBTX
}

func NewCouponRepository(db DBTX) *CouponRepository {
	return &CouponRepository{db}
}

func (r *CouponRepository) GetCouponByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	var (
		coupon    entity.Coupon
		expiresAt sql.NullTime
	)
	query := `SELECT id, code, type, value, min_subtotal, usage_limit, used_count, expires_at, is_active FROM coupons WHERE code = ?`
	err := r.db.QueryRowContext(ctx, query, code).Scan(&coupon.ID, &coupon.Code, &coupon.Type, &coupon.Value,
		&coupon.MinSubtotal, &coupon.UsageLimit, &coupon.UsedCount, &expiresAt, &coupon.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	coupon.ExpiresAt = timePtr(expiresAt)
	return &coupon, nil
}

// RedeemCoupon counts one use, refusing when the usage limit has been reached.
func (r *CouponRepository) RedeemCoupon(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE code = ? AND (usage_limit = 0 OR used_count < usage_limit)`, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCouponExhausted
	}
	return nil
}
