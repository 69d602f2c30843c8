package model

import "time"

type NotificationKind string

const (
	NotificationOrderPlaced    NotificationKind = "ORDER_PLACED"
	NotificationOrderPaid      NotificationKind = "ORDER_PAID"
	NotificationOrderShipped   NotificationKind = "ORDER_SHIPPED"
	NotificationOrderDelivered NotificationKind = "ORDER_DELIVERED"
	NotificationOrderCancelled NotificationKind = "ORDER_CANCELLED"
)

type Notification struct {
	ID      int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  int64            `gorm:"not null;index" json:"user_id"`
	Kind    NotificationKind `gorm:"type:varchar(30);not null" json:"kind"`
	Title   string           `gorm:"type:varchar(255);not null" json:"title"`
	Message string           `gorm:"type:text;not null" json:"message"`
	OrderID *int64           `gorm:"index" json:"order_id,omitempty"`
	// one row per (order, event); a second insert with the same key is dropped
	DedupeKey string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"-"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}
