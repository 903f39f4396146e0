package repository

import (
	"context"
	"database/sql"
	"time"

	"smartmart/internal/entity"
)

type DataRequestRepository struct {
	db *sql.DB
}

func NewDataRequestRepository(db *sql.DB) *DataRequestRepository {
	return &DataRequestRepository{db}
}

const dataRequestColumns = `id, user_id, type, status, reason, admin_notes, export_path, expires_at, processed_by, processed_at, created_at`

func scanDataRequest(row rowScanner) (*entity.DataRequest, error) {
	var (
		req                    entity.DataRequest
		expiresAt, processedAt sql.NullTime
		processedBy            sql.NullInt64
	)
	err := row.Scan(&req.ID, &req.UserID, &req.Type, &req.Status, &req.Reason, &req.AdminNotes, &req.ExportPath,
		&expiresAt, &processedBy, &processedAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	req.ExpiresAt = timePtr(expiresAt)
	req.ProcessedAt = timePtr(processedAt)
	req.ProcessedBy = int64Ptr(processedBy)
	return &req, nil
}

func (r *DataRequestRepository) CreateDataRequest(ctx context.Context, req *entity.DataRequest) (*entity.DataRequest, error) {
	req.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO data_requests (user_id, type, status, reason, admin_notes, export_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.UserID, req.Type, req.Status, req.Reason, req.AdminNotes, req.ExportPath, req.CreatedAt)
	if err != nil {
		return nil, err
	}
	if req.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *DataRequestRepository) GetDataRequest(ctx context.Context, id int64) (*entity.DataRequest, error) {
	req, err := scanDataRequest(r.db.QueryRowContext(ctx, `SELECT `+dataRequestColumns+` FROM data_requests WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

// FindOpenDataRequest returns the user's pending or processing request of the given type.
func (r *DataRequestRepository) FindOpenDataRequest(ctx context.Context, userID int64, reqType entity.DataRequestType) (*entity.DataRequest, error) {
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE user_id = ? AND type = ? AND status IN ('pending', 'processing') ORDER BY id DESC LIMIT 1`
	req, err := scanDataRequest(r.db.QueryRowContext(ctx, query, userID, reqType))
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

type DataRequestFilter struct {
	UserID *int64
	Status entity.DataRequestStatus
	// CreatedBefore limits results to requests older than this instant.
	CreatedBefore *time.Time
	// ExpiredBefore limits results to exports whose files expired before this instant.
	ExpiredBefore *time.Time
}

func (r *DataRequestRepository) GetDataRequests(ctx context.Context, filter DataRequestFilter) ([]*entity.DataRequest, error) {
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE 1 = 1`
	var args []interface{}
	if filter.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.CreatedBefore != nil {
		query += ` AND created_at < ? AND status IN ('pending', 'processing')`
		args = append(args, *filter.CreatedBefore)
	}
	if filter.ExpiredBefore != nil {
		query += ` AND export_path <> '' AND expires_at < ?`
		args = append(args, *filter.ExpiredBefore)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*entity.DataRequest
	for rows.Next() {
		req, err := scanDataRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *DataRequestRepository) UpdateDataRequest(ctx context.Context, req *entity.DataRequest) error {
	query := `UPDATE data_requests SET status = ?, admin_notes = ?, export_path = ?, expires_at = ?, processed_by = ?, processed_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, req.Status, req.AdminNotes, req.ExportPath, nullTime(req.ExpiresAt),
		nullInt64(req.ProcessedBy), nullTime(req.ProcessedAt), req.ID)
	return err
}
