package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
)

// UserSubscription is a reader's entitlement, extended by fulfilled payments.
type UserSubscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID               string                   `gorm:"column:user_id;not null;uniqueIndex:user_subscriptions_user_id_key"`
	UserEmail            string                   `gorm:"column:user_email;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	LastPaymentReference string                   `gorm:"column:last_payment_reference;not null"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserSubscription) TableName() string { return "user_subscriptions" }

func (s *UserSubscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&PaymentIntent{},
		&PaymentEvent{},
		&Coupon{},
		&CouponRedemption{},
		&UserSubscription{},
	}
}
