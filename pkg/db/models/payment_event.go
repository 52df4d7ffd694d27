package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	"github.com/cyberbrief/cyberbrief-backend/pkg/types"
)

// PaymentEvent is the audit trail of verified provider deliveries.
type PaymentEvent struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PaymentReference string              `gorm:"column:payment_reference;not null;index"`
	OrderID          string              `gorm:"column:order_id;not null"`
	ProviderStatus   string              `gorm:"column:provider_status;not null"`
	MappedStatus     enums.PaymentStatus `gorm:"column:mapped_status;type:payment_status;not null"`
	SignedAmount     string              `gorm:"column:signed_amount;not null"`
	Outcome          string              `gorm:"column:outcome;not null"`
	Payload          types.JSONB         `gorm:"column:payload;type:jsonb"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

func (e *PaymentEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
