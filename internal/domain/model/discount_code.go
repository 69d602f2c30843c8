package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountCode is a single-use, time-limited code owned by one user.
type DiscountCode struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"not null;index" json:"user_id"`
	Code       string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Percentage int        `gorm:"not null" json:"percentage"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	IsUsed     bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	OrderID    *int64     `gorm:"index" json:"order_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (d DiscountCode) IsValidAt(now time.Time) bool {
	return !d.IsUsed && now.Before(d.ExpiresAt)
}

type DiscountMode string

const (
	// DiscountModeFlat subtracts the percentage number as an amount of money.
	DiscountModeFlat DiscountMode = "flat"
	// DiscountModePercent subtracts percentage/100 of the subtotal.
	DiscountModePercent DiscountMode = "percent"
)

func (m DiscountMode) Valid() bool {
	return m == DiscountModeFlat || m == DiscountModePercent
}

// DiscountAmount returns what a code takes off subtotal, never more than the
// subtotal itself.
func DiscountAmount(subtotal decimal.Decimal, percentage int, mode DiscountMode) decimal.Decimal {
	if percentage <= 0 || !subtotal.IsPositive() {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(percentage))

	var amount decimal.Decimal
	switch mode {
	case DiscountModePercent:
		amount = subtotal.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
	default:
		amount = pct
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
