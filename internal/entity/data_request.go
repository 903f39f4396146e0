package entity

import "time"

type DataRequestType string

const (
	DataRequestExport   DataRequestType = "export"
	DataRequestDeletion DataRequestType = "deletion"
)

type DataRequestStatus string

const (
	DataRequestPending    DataRequestStatus = "pending"
	DataRequestProcessing DataRequestStatus = "processing"
	DataRequestCompleted  DataRequestStatus = "completed"
	DataRequestRejected   DataRequestStatus = "rejected"
)

var dataRequestTransitions = map[DataRequestStatus][]DataRequestStatus{
	DataRequestPending:    {DataRequestProcessing, DataRequestRejected},
	DataRequestProcessing: {DataRequestCompleted, DataRequestRejected},
}

func (s DataRequestStatus) CanTransitionTo(next DataRequestStatus) bool {
	for _, allowed := range dataRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (t DataRequestType) Valid() bool {
	return t == DataRequestExport || t == DataRequestDeletion
}

type DataRequest struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	Type        DataRequestType   `json:"type"`
	Status      DataRequestStatus `json:"status"`
	Reason      string            `json:"reason"`
	AdminNotes  string            `json:"admin_notes,omitempty"`
	ExportPath  string            `json:"-"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	ProcessedBy *int64            `json:"processed_by,omitempty"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Open reports whether the request still awaits an outcome.
func (r *DataRequest) Open() bool {
	return r.Status == DataRequestPending || r.Status == DataRequestProcessing
}

// IsOverdue reports whether an open request is older than the threshold.
func (r *DataRequest) IsOverdue(threshold time.Duration, now time.Time) bool {
	return r.Open() && now.Sub(r.CreatedAt) > threshold
}

func (r *DataRequest) ExportAvailable(now time.Time) bool {
	return r.Type == DataRequestExport &&
		r.Status == DataRequestCompleted &&
		r.ExportPath != "" &&
		r.ExpiresAt != nil && now.Before(*r.ExpiresAt)
}
