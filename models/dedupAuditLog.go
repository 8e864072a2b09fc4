package models

import "time"

// DedupAuditLog records one financial event removed by a live dedup run.
// Snapshot holds the deleted row as JSON.
type DedupAuditLog struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	AccountId           string    `gorm:"size:64;not null;index" json:"account_id"`
	RunId               string    `gorm:"size:64;not null;index" json:"run_id"`
	FinancialEventRowId int       `gorm:"not null;index" json:"financial_event_row_id"`
	FinancialEventId    *string   `gorm:"size:191" json:"financial_event_id"`
	GroupKey            string    `gorm:"size:500" json:"group_key"`
	Rule                string    `gorm:"size:20" json:"rule"`
	KeptRowId           int       `json:"kept_row_id"`
	Snapshot            string    `gorm:"type:text" json:"snapshot"`
	Actor               string    `gorm:"size:100" json:"actor"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
}
