package payments

import (
	"context"
	"strings"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/internal/coupons"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/metrics"
	"github.com/cyberbrief/cyberbrief-backend/pkg/security"
	"github.com/cyberbrief/cyberbrief-backend/pkg/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxAmountScale = 2

var maxAmount = decimal.New(1, 10)

// PaymentLinkProvider opens hosted payment pages.
type PaymentLinkProvider interface {
	CreatePaymentLink(ctx context.Context, req wallet.LinkRequest) (*wallet.Link, error)
}

// CouponService quotes coupons before the provider call and redeems them after.
type CouponService interface {
	Quote(ctx context.Context, code, userID string, amount decimal.Decimal) (*coupons.Quote, error)
	Redeem(ctx context.Context, quote *coupons.Quote, userID, reference string) error
}

// Service creates payment intents and reports their status.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error)
	Status(ctx context.Context, reference string) (*StatusResult, error)
}

// CreateIntentInput is a client request for a payment link.
type CreateIntentInput struct {
	Amount     decimal.Decimal
	Currency   string
	Email      string
	UserID     string
	CouponCode string
}

// CreateIntentResult is returned once the provider issued a link.
type CreateIntentResult struct {
	PaymentURL string `json:"paymentUrl"`
	Reference  string `json:"ref"`
}

// StatusResult is the poller-facing view of an intent.
type StatusResult struct {
	Reference string              `json:"reference"`
	Status    enums.PaymentStatus `json:"status"`
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Store        Store
	Provider     PaymentLinkProvider
	Coupons      CouponService
	RedirectURL  func(reference string) string
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
	Now          func() time.Time
	NewReference func() string
}

type service struct {
	store        Store
	provider     PaymentLinkProvider
	coupons      CouponService
	redirectURL  func(string) string
	metrics      *metrics.PaymentMetrics
	logg         *logger.Logger
	now          func() time.Time
	newReference func() string
	validate     *validator.Validate
}

// NewService builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment store required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment provider required")
	}
	if params.RedirectURL == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redirect url builder required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newReference := params.NewReference
	if newReference == nil {
		newReference = uuid.NewString
	}
	return &service{
		store:        params.Store,
		provider:     params.Provider,
		coupons:      params.Coupons,
		redirectURL:  params.RedirectURL,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
		newReference: newReference,
		validate:     validator.New(),
	}, nil
}

// CreateIntent persists a pending intent before calling the provider, so a
// webhook racing the synchronous response always finds a row. On provider
// failure the pending row is kept and no coupon is consumed.
func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	currency, err := s.validateInput(&input)
	if err != nil {
		s.metrics.IncIntent(metrics.OutcomeValidation)
		return nil, err
	}

	finalAmount := input.Amount
	discount := decimal.Zero
	var quote *coupons.Quote
	var couponCode *string
	if input.CouponCode != "" {
		if s.coupons == nil {
			s.metrics.IncIntent(metrics.OutcomeValidation)
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupons are not available")
		}
		quote, err = s.coupons.Quote(ctx, input.CouponCode, input.UserID, input.Amount)
		if err != nil {
			s.metrics.IncIntent(metrics.OutcomeValidation)
			return nil, err
		}
		finalAmount = quote.FinalAmount
		discount = quote.Discount
		couponCode = &quote.Code
	}

	reference := s.newReference()
	ctx = s.logg.WithFields(s.logg.WithReference(ctx, reference), map[string]any{
		"user_id": input.UserID,
		"amount":  finalAmount.String(),
	})

	intent := &models.PaymentIntent{
		Reference:      reference,
		Amount:         finalAmount,
		OriginalAmount: input.Amount,
		DiscountAmount: discount,
		Currency:       currency,
		UserID:         input.UserID,
		UserEmail:      input.Email,
		CouponCode:     couponCode,
	}
	if err := s.store.InsertPending(ctx, intent); err != nil {
		s.metrics.IncIntent(metrics.OutcomeStore)
		if db.IsUniqueViolation(err, "reference") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment reference already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent")
	}

	started := s.now()
	link, err := s.provider.CreatePaymentLink(ctx, wallet.LinkRequest{
		Amount:      security.FormatAmount(finalAmount),
		Currency:    currency.String(),
		Email:       input.Email,
		Ref:         reference,
		RedirectURL: s.redirectURL(reference),
	})
	if err != nil {
		s.metrics.ObserveProvider(metrics.OutcomeProvider, s.now().Sub(started))
		s.metrics.IncIntent(metrics.OutcomeProvider)
		s.logg.Error(ctx, "payment link creation failed; intent left pending", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable").
			WithDetails(map[string]any{"ref": reference})
	}
	s.metrics.ObserveProvider(metrics.OutcomeSuccess, s.now().Sub(started))

	update := Update{PaymentURL: &link.URL}
	if link.OrderID != "" {
		update.OrderID = &link.OrderID
	}
	if _, err := s.store.UpdateByReference(ctx, reference, update); err != nil {
		// The link is live and webhooks resolve by reference, so the client
		// still gets it.
		s.logg.Error(ctx, "failed to record payment url", err)
	}

	if quote != nil {
		if err := s.coupons.Redeem(ctx, quote, input.UserID, reference); err != nil {
			s.metrics.IncCouponFailure()
			s.logg.Error(s.logg.WithField(ctx, "coupon_code", quote.Code), "coupon redemption failed after payment link creation", err)
		}
	}

	s.metrics.IncIntent(metrics.OutcomeSuccess)
	s.logg.Info(ctx, "payment intent created")

	return &CreateIntentResult{PaymentURL: link.URL, Reference: reference}, nil
}

func (s *service) Status(ctx context.Context, reference string) (*StatusResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	intent, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return &StatusResult{Reference: intent.Reference, Status: intent.Status}, nil
}

func (s *service) validateInput(input *CreateIntentInput) (enums.Currency, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.UserID = strings.TrimSpace(input.UserID)
	input.CouponCode = strings.TrimSpace(input.CouponCode)

	fields := map[string]string{}
	switch {
	case !input.Amount.IsPositive():
		fields["amount"] = "must be greater than 0"
	case !input.Amount.Equal(input.Amount.Round(maxAmountScale)):
		fields["amount"] = "must have at most 2 decimal places"
	case input.Amount.GreaterThanOrEqual(maxAmount):
		fields["amount"] = "is too large"
	}
	if input.Email == "" {
		fields["email"] = "is required"
	} else if err := s.validate.Var(input.Email, "email"); err != nil {
		fields["email"] = "must be a valid email"
	}
	if input.UserID == "" {
		fields["userId"] = "is required"
	}

	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		fields["currency"] = "is not supported"
	}

	if len(fields) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid payment request").WithDetails(fields)
	}
	return currency, nil
}
