package payments

import (
	"context"
	"errors"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	"github.com/cyberbrief/cyberbrief-backend/pkg/types"
	"gorm.io/gorm"
)

var errEmptyUpdate = errors.New("update has no columns")

// Store is the single access point to payment intent rows. Every write is a
// single-row update keyed by reference.
type Store interface {
	WithTx(tx *gorm.DB) Store
	GetByReference(ctx context.Context, reference string) (*models.PaymentIntent, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	InsertPending(ctx context.Context, intent *models.PaymentIntent) error
	UpdateByReference(ctx context.Context, reference string, update Update) (bool, error)
	InsertEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Update lists the columns to set. Nil fields are left untouched. When
// OnlyIfStatus is non-empty the row is only written if its current status is
// one of them.
type Update struct {
	Status          *enums.PaymentStatus
	PaymentURL      *string
	OrderID         *string
	ProviderPayload types.JSONB
	FulfilledAt     *time.Time
	OnlyIfStatus    []enums.PaymentStatus
}

type store struct {
	db *gorm.DB
}

// NewStore returns a payment store bound to the provided database.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &store{db: tx}
}

func (s *store) GetByReference(ctx context.Context, reference string) (*models.PaymentIntent, error) {
	return s.first(ctx, "reference = ?", reference)
}

// GetByOrderID returns the most recent intent carrying the provider order id.
func (s *store) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	return s.first(ctx, "order_id = ?", orderID)
}

func (s *store) first(ctx context.Context, query string, arg any) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	res := s.db.WithContext(ctx).
		Where(query, arg).
		Order("created_at DESC").
		Limit(1).
		Find(&intent)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &intent, nil
}

// InsertPending persists a new intent. Status and payment url are forced to
// their initial values regardless of what the caller set.
func (s *store) InsertPending(ctx context.Context, intent *models.PaymentIntent) error {
	intent.Status = enums.PaymentStatusPending
	intent.PaymentURL = nil
	intent.FulfilledAt = nil
	return s.db.WithContext(ctx).Create(intent).Error
}

func (s *store) UpdateByReference(ctx context.Context, reference string, update Update) (bool, error) {
	columns := map[string]any{}
	if update.Status != nil {
		columns["status"] = *update.Status
	}
	if update.PaymentURL != nil {
		columns["payment_url"] = *update.PaymentURL
	}
	if update.OrderID != nil {
		columns["order_id"] = *update.OrderID
	}
	if update.ProviderPayload != nil {
		columns["provider_payload"] = update.ProviderPayload
	}
	if update.FulfilledAt != nil {
		columns["fulfilled_at"] = *update.FulfilledAt
	}
	if len(columns) == 0 {
		return false, errEmptyUpdate
	}
	columns["updated_at"] = time.Now().UTC()

	query := s.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("reference = ?", reference)
	if len(update.OnlyIfStatus) > 0 {
		query = query.Where("status IN ?", statusStrings(update.OnlyIfStatus))
	}

	res := query.Updates(columns)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *store) InsertEvent(ctx context.Context, event *models.PaymentEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func statusStrings(statuses []enums.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, status.String())
	}
	return out
}
