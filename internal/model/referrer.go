package model

import (
	"time"
)

// ReferrerAccount carries no balance column. The spendable balance is a
// projection over reward_ledger_entry and is recomputed on every read,
// so a stored counter can never drift from the ledger.
type ReferrerAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128)" json:"name"`
	Phone     string    `gorm:"type:varchar(16);uniqueIndex" json:"phone"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReferrerAccount) TableName() string {
	return "referrer_account"
}
