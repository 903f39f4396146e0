package entity

import "time"

const (
	JobGDPRExport      = "gdpr.export"
	JobGDPRDeletion    = "gdpr.deletion"
	JobSubscriptionBox = "subscription.box"
)

// Job is the payload of a message on the jobs topic.
type Job struct {
	Type        string    `json:"type"`
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	PeriodStart time.Time `json:"period_start,omitempty"`
	PeriodEnd   time.Time `json:"period_end,omitempty"`
}
