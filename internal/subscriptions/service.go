package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"gorm.io/gorm"
)

// Service grants and reads reader entitlements.
type Service interface {
	// Grant extends the user's entitlement by one period for a fulfilled
	// payment. tx binds the write to the caller's transaction when non-nil.
	Grant(ctx context.Context, tx *gorm.DB, input GrantInput) (*models.UserSubscription, error)
	Get(ctx context.Context, userID string) (*Entitlement, error)
}

// GrantInput identifies the payment that earned the entitlement.
type GrantInput struct {
	UserID           string
	UserEmail        string
	PaymentReference string
}

// Entitlement is the read model returned to clients.
type Entitlement struct {
	UserID           string                   `json:"userId"`
	Status           enums.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time                `json:"currentPeriodEnd"`
	Active           bool                     `json:"active"`
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo   Repository
	Period time.Duration
	Now    func() time.Time
}

type service struct {
	repo   Repository
	period time.Duration
	now    func() time.Time
}

// NewService builds the entitlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repository required")
	}
	if params.Period <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription period must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, period: params.Period, now: now}, nil
}

func (s *service) Grant(ctx context.Context, tx *gorm.DB, input GrantInput) (*models.UserSubscription, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PaymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	existing, err := repo.FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}

	if existing == nil {
		sub := &models.UserSubscription{
			UserID:               userID,
			UserEmail:            input.UserEmail,
			Status:               enums.SubscriptionStatusActive,
			CurrentPeriodEnd:     now.Add(s.period),
			LastPaymentReference: input.PaymentReference,
		}
		if err := repo.Create(ctx, sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}
		return sub, nil
	}

	if existing.LastPaymentReference == input.PaymentReference {
		return existing, nil
	}

	start := now
	if existing.CurrentPeriodEnd.After(now) {
		start = existing.CurrentPeriodEnd
	}
	existing.CurrentPeriodEnd = start.Add(s.period)
	existing.Status = enums.SubscriptionStatusActive
	existing.LastPaymentReference = input.PaymentReference
	if input.UserEmail != "" {
		existing.UserEmail = input.UserEmail
	}

	if err := repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "extend subscription")
	}
	return existing, nil
}

func (s *service) Get(ctx context.Context, userID string) (*Entitlement, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	active := sub.CurrentPeriodEnd.After(s.now())
	status := enums.SubscriptionStatusActive
	if !active {
		status = enums.SubscriptionStatusExpired
	}
	return &Entitlement{
		UserID:           sub.UserID,
		Status:           status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd.UTC(),
		Active:           active,
	}, nil
}
