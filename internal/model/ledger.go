package model

import (
	"time"
)

// Ledger entry types. Direction is implied by the type (lead_reward and
// bonus credit the balance, withdrawal debits it), never stored as a
// signed amount.
const (
	EntryTypeLeadReward = "LEAD_REWARD"
	EntryTypeBonus      = "BONUS"
	EntryTypeWithdrawal = "WITHDRAWAL"
	EntryTypeAdjustment = "ADJUSTMENT"
)

// RewardLedgerEntry is one immutable financial fact on a referrer's
// ledger. The ledger is the source of truth for every money-like
// movement; balances are always recomputed from it.
//
// Ledger design rules:
//  1. Append only. No update or delete exists anywhere in the codebase.
//  2. Amount is strictly positive; direction comes from Type.
//  3. LeadNo / WithdrawalNo are unique when set, so the store itself
//     enforces at most one LEAD_REWARD entry per lead and one WITHDRAWAL
//     entry per withdrawal.
type RewardLedgerEntry struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	ReferrerID   int64     `gorm:"index;not null" json:"referrer_id"`
	LeadNo       *string   `gorm:"type:varchar(64);uniqueIndex" json:"lead_no,omitempty"`
	WithdrawalNo *string   `gorm:"type:varchar(64);uniqueIndex" json:"withdrawal_no,omitempty"`
	Type         string    `gorm:"type:varchar(20);index;not null" json:"type"`
	Amount       int64     `gorm:"not null" json:"amount"` // minor units, always positive
	Description  string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (RewardLedgerEntry) TableName() string {
	return "reward_ledger_entry"
}
