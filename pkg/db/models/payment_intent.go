package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	"github.com/cyberbrief/cyberbrief-backend/pkg/types"
)

// PaymentIntent is one attempt to collect payment, keyed by its reference.
type PaymentIntent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Reference       string              `gorm:"column:reference;not null;uniqueIndex:payment_intents_reference_key"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	OriginalAmount  decimal.Decimal     `gorm:"column:original_amount;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	UserID          string              `gorm:"column:user_id;not null;index"`
	UserEmail       string              `gorm:"column:user_email;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	PaymentURL      *string             `gorm:"column:payment_url"`
	OrderID         *string             `gorm:"column:order_id;index"`
	CouponCode      *string             `gorm:"column:coupon_code"`
	ProviderPayload types.JSONB         `gorm:"column:provider_payload;type:jsonb"`
	FulfilledAt     *time.Time          `gorm:"column:fulfilled_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
