package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
)

type Coupon struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code           string             `gorm:"column:code;not null;uniqueIndex:coupons_code_key"`
	DiscountType   enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue  decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	Active         bool               `gorm:"column:active;not null"`
	MaxRedemptions *int               `gorm:"column:max_redemptions"`
	PerUserLimit   int                `gorm:"column:per_user_limit;not null"`
	ExpiresAt      *time.Time         `gorm:"column:expires_at"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string { return "coupons" }

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CouponRedemption records a coupon consumed by a payment that reached the
// provider. At most one redemption exists per payment reference.
type CouponRedemption struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CouponID         uuid.UUID       `gorm:"column:coupon_id;type:uuid;not null;index"`
	UserID           string          `gorm:"column:user_id;not null;index"`
	PaymentReference string          `gorm:"column:payment_reference;not null;uniqueIndex:coupon_redemptions_payment_reference_key"`
	DiscountAmount   decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (CouponRedemption) TableName() string { return "coupon_redemptions" }

func (r *CouponRedemption) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
