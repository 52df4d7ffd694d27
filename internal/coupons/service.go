package coupons

import (
	"context"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Quote is a validated coupon applied to an amount. It is not a reservation:
// limits are checked again when the coupon is redeemed.
type Quote struct {
	CouponID       uuid.UUID
	Code           string
	OriginalAmount decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
}

// ServiceParams groups dependencies for the coupon service.
type ServiceParams struct {
	Repo Repository
	DB   txRunner
	Now  func() time.Time
}

// Service validates and redeems coupons.
type Service struct {
	repo Repository
	db   txRunner
	now  func() time.Time
}

// NewService builds a coupon service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, db: params.DB, now: now}, nil
}

// Quote validates code for userID and computes the discounted amount.
func (s *Service) Quote(ctx context.Context, code, userID string, amount decimal.Decimal) (*Quote, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	if err := s.checkUsable(ctx, s.repo, coupon, userID); err != nil {
		return nil, err
	}

	discount := discountFor(coupon, amount)
	final := amount.Sub(discount)
	if !final.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon discount covers the full amount").
			WithDetails(map[string]any{"couponCode": normalized})
	}

	return &Quote{
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		OriginalAmount: amount,
		Discount:       discount,
		FinalAmount:    final,
	}, nil
}

// Redeem records the coupon as used by the payment reference. Redeeming the
// same reference twice is a no-op.
func (s *Service) Redeem(ctx context.Context, quote *Quote, userID, reference string) error {
	if quote == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "quote is required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindRedemptionByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load redemption")
		}
		if existing != nil {
			return nil
		}

		coupon, err := repo.FindByCodeForUpdate(ctx, quote.Code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock coupon")
		}
		if err := s.checkUsable(ctx, repo, coupon, userID); err != nil {
			return err
		}

		redemption := &models.CouponRedemption{
			CouponID:         coupon.ID,
			UserID:           userID,
			PaymentReference: reference,
			DiscountAmount:   quote.Discount,
		}
		if err := repo.CreateRedemption(ctx, redemption); err != nil {
			if db.IsUniqueViolation(err, "payment_reference") {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create redemption")
		}
		return nil
	})
}

func (s *Service) checkUsable(ctx context.Context, repo Repository, coupon *models.Coupon, userID string) error {
	if coupon == nil || !coupon.Active {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon is not valid")
	}
	if coupon.ExpiresAt != nil && !s.now().Before(*coupon.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	}

	if coupon.MaxRedemptions != nil {
		total, err := repo.CountRedemptions(ctx, coupon.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count redemptions")
		}
		if total >= int64(*coupon.MaxRedemptions) {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupon redemption limit reached")
		}
	}

	if coupon.PerUserLimit > 0 {
		used, err := repo.CountUserRedemptions(ctx, coupon.ID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count user redemptions")
		}
		if used >= int64(coupon.PerUserLimit) {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupon already used")
		}
	}
	return nil
}

// discountFor returns the discount for amount, rounded to cents and never
// larger than amount.
func discountFor(coupon *models.Coupon, amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercent:
		discount = amount.Mul(coupon.DiscountValue).Div(hundred).Round(2)
	case enums.DiscountTypeFixed:
		discount = coupon.DiscountValue.Round(2)
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(amount) {
		return amount
	}
	return discount
}
