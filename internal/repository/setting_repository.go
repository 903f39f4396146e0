package repository

import (
	"context"
	"database/sql"
	"time"

	"smartmart/internal/entity"
)

type SettingRepository struct {
	db *sql.DB
}

func NewSettingRepository(db *sql.DB) *SettingRepository {
	return &SettingRepository{db}
}

func (r *SettingRepository) GetSettings(ctx context.Context) ([]entity.Setting, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT `key`, value, updated_at FROM settings ORDER BY `key`")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []entity.Setting
	for rows.Next() {
		var s entity.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// UpsertSettings writes every key/value pair in one transaction.
func (r *SettingRepository) UpsertSettings(ctx context.Context, values map[string]string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := "INSERT INTO settings (`key`, value, updated_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)"
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, query, key, value, now); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
