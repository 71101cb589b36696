package model

import (
	"time"
)

const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusRejected   = "REJECTED"
)

// ValidWithdrawalTransitions mirrors the lead transition table. COMPLETED
// and REJECTED are terminal; a withdrawal is never re-opened.
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusPending:    {WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusRejected},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted, WithdrawalStatusRejected},
}

func CanWithdrawalTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidWithdrawalTransitions[currentStatus]
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

func IsTerminalWithdrawalStatus(status string) bool {
	return status == WithdrawalStatusCompleted || status == WithdrawalStatusRejected
}

// Withdrawal is one request to convert ledger balance into an external
// payout. The payout itself happens outside the system; TransactionID is
// the operator's external payment reference and is required to complete.
type Withdrawal struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	ReferrerID    int64      `gorm:"index;not null" json:"referrer_id"`
	Amount        int64      `gorm:"not null" json:"amount"` // minor units
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	TransactionID string     `gorm:"type:varchar(64)" json:"transaction_id,omitempty"`
	ProcessedBy   string     `gorm:"type:varchar(64)" json:"processed_by,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	Notes         string     `gorm:"type:varchar(256)" json:"notes,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}
