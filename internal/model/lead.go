package model

import (
	"time"
)

// Lead statuses. A lead walks the pipeline one step at a time; `rejected`
// is reachable from any non-terminal status, `rewarded` and `rejected`
// are terminal.
const (
	LeadStatusSubmitted  = "SUBMITTED"
	LeadStatusVerified   = "VERIFIED"
	LeadStatusContacted  = "CONTACTED"
	LeadStatusInterested = "INTERESTED"
	LeadStatusInstalled  = "INSTALLED"
	LeadStatusRewarded   = "REWARDED"
	LeadStatusRejected   = "REJECTED"
)

// ValidLeadTransitions is the single source of truth for legal status
// changes. Handlers and services never compare status strings ad hoc.
var ValidLeadTransitions = map[string][]string{
	LeadStatusSubmitted:  {LeadStatusVerified, LeadStatusRejected},
	LeadStatusVerified:   {LeadStatusContacted, LeadStatusRejected},
	LeadStatusContacted:  {LeadStatusInterested, LeadStatusRejected},
	LeadStatusInterested: {LeadStatusInstalled, LeadStatusRejected},
	LeadStatusInstalled:  {LeadStatusRewarded, LeadStatusRejected},
}

func CanLeadTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidLeadTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsTerminalLeadStatus(status string) bool {
	return status == LeadStatusRewarded || status == LeadStatusRejected
}

// Lead is one referred prospective customer tracked through the
// installation pipeline.
//
// Audit rules:
//  1. Leads are never deleted, only transitioned.
//  2. A duplicate submission is still stored, flagged is_duplicate, and can
//     never reach a reward-eligible status.
//  3. reward_amount is set no earlier than the INSTALLED transition and only
//     while it is still unset.
type Lead struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"lead_no"`
	ReferrerID    int64      `gorm:"index;not null" json:"referrer_id"`
	CustomerName  string     `gorm:"type:varchar(128);not null" json:"customer_name"`
	CustomerPhone string     `gorm:"type:varchar(16);index;not null" json:"customer_phone"`
	CustomerEmail string     `gorm:"type:varchar(128)" json:"customer_email,omitempty"`
	City          string     `gorm:"type:varchar(64);not null" json:"city"`
	PropertyType  string     `gorm:"type:varchar(32)" json:"property_type,omitempty"`
	Notes         string     `gorm:"type:varchar(512)" json:"notes,omitempty"`
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	IsDuplicate   bool       `gorm:"not null;default:false" json:"is_duplicate"`
	RewardAmount  *int64     `json:"reward_amount,omitempty"` // minor units, set at INSTALLED
	ContactedAt   *time.Time `json:"contacted_at,omitempty"`
	InstalledAt   *time.Time `json:"installed_at,omitempty"`
	RewardedAt    *time.Time `json:"rewarded_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Lead) TableName() string {
	return "lead"
}
