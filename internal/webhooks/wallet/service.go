package walletwebhook

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/internal/payments"
	"github.com/cyberbrief/cyberbrief-backend/internal/subscriptions"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/metrics"
	"github.com/cyberbrief/cyberbrief-backend/pkg/security"
	"github.com/cyberbrief/cyberbrief-backend/pkg/types"
	"gorm.io/gorm"
)

// EventPaymentFulfilled is published once per payment that reaches fulfilled.
const EventPaymentFulfilled = "payment.fulfilled"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entitlementGranter interface {
	Grant(ctx context.Context, tx *gorm.DB, input subscriptions.GrantInput) (*models.UserSubscription, error)
}

type eventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) (string, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

// Payload is the provider's notification body. The signature arrives as
// either "signature" or "secret" depending on the provider flow.
type Payload struct {
	OrderID   string               `json:"order_id"`
	Signature string               `json:"signature"`
	Secret    string               `json:"secret"`
	Amount    types.FlexibleAmount `json:"amount"`
	Status    string               `json:"status"`
	Ref       string               `json:"ref"`
}

// ClaimedSignature returns the signature the sender attached.
func (p Payload) ClaimedSignature() string {
	if sig := strings.TrimSpace(p.Signature); sig != "" {
		return sig
	}
	return strings.TrimSpace(p.Secret)
}

// Delivery is a decoded notification plus the raw body kept for audit.
type Delivery struct {
	Payload
	Raw []byte
}

// Result describes what a delivery did to the intent.
type Result struct {
	Reference string              `json:"reference"`
	Status    enums.PaymentStatus `json:"status"`
	Applied   bool                `json:"applied"`
	Outcome   string              `json:"-"`
}

// FulfilledEvent is the message body published after a payment is fulfilled.
type FulfilledEvent struct {
	Reference   string    `json:"reference"`
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	FulfilledAt time.Time `json:"fulfilledAt"`
}

type ServiceParams struct {
	Store             payments.Store
	TransactionRunner txRunner
	Entitlements      entitlementGranter
	Publisher         eventPublisher
	Guard             deliveryGuard
	APIKey            string
	APISecret         string
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service reconciles provider notifications against stored payment intents.
type Service struct {
	store        payments.Store
	txRunner     txRunner
	entitlements entitlementGranter
	publisher    eventPublisher
	guard        deliveryGuard
	apiKey       string
	apiSecret    string
	metrics      *metrics.PaymentMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment store required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service required")
	}
	if params.APIKey == "" || params.APISecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet credentials required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        params.Store,
		txRunner:     params.TransactionRunner,
		entitlements: params.Entitlements,
		publisher:    params.Publisher,
		guard:        params.Guard,
		apiKey:       params.APIKey,
		apiSecret:    params.APISecret,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// MapStatus translates the provider vocabulary. Only fulfilled and timed_out
// are recognised; everything else is stored as unknown.
func MapStatus(providerStatus string) enums.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "fulfilled":
		return enums.PaymentStatusFulfilled
	case "timed_out":
		return enums.PaymentStatusTimedOut
	default:
		return enums.PaymentStatusUnknown
	}
}

// Handle verifies and applies one delivery. Nothing is read or written before
// the signature checks out.
func (s *Service) Handle(ctx context.Context, delivery Delivery) (*Result, error) {
	payload := delivery.Payload
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	payload.Ref = strings.TrimSpace(payload.Ref)
	payload.Status = strings.TrimSpace(payload.Status)
	signature := payload.ClaimedSignature()

	if missing := missingFields(payload, signature); len(missing) > 0 {
		s.metrics.IncWebhook(metrics.OutcomeBadRequest)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}

	if !security.VerifySignature(payload.Amount.Raw, payload.OrderID, s.apiKey, s.apiSecret, signature) {
		s.metrics.IncWebhook(metrics.OutcomeBadSign)
		s.logg.Warn(s.logg.WithField(ctx, "order_id", payload.OrderID), "wallet webhook signature rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":        payload.OrderID,
		"provider_status": payload.Status,
	})

	deliveryID := DeliveryID(payload.OrderID, payload.Status, signature)
	marked := false
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, deliveryID)
		switch {
		case err != nil:
			s.logg.Error(ctx, "webhook replay guard unavailable; relying on conditional update", err)
		case seen:
			return s.replayed(ctx, payload, delivery.Raw)
		default:
			marked = true
		}
	}

	result, err := s.apply(ctx, payload, delivery.Raw)
	if err != nil {
		if marked {
			if delErr := s.guard.Delete(context.WithoutCancel(ctx), deliveryID); delErr != nil {
				s.logg.Error(ctx, "failed to release webhook replay guard", delErr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, payload Payload, raw []byte) (*Result, error) {
	intent, err := s.resolve(ctx, s.store, payload)
	if err != nil {
		return nil, err
	}
	return s.applyTo(s.logg.WithReference(ctx, intent.Reference), intent, payload, raw)
}

// target is the status a delivery asks for. A signed amount that differs from
// the stored one is recorded as unknown and never grants.
func (s *Service) target(ctx context.Context, intent *models.PaymentIntent, payload Payload) (enums.PaymentStatus, string) {
	if !payload.Amount.Value.Equal(intent.Amount) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"signed_amount": payload.Amount.Raw,
			"stored_amount": intent.Amount.String(),
		}), "webhook amount does not match intent; recording unknown")
		return enums.PaymentStatusUnknown, metrics.OutcomeMismatch
	}
	return MapStatus(payload.Status), ""
}

func (s *Service) applyTo(ctx context.Context, intent *models.PaymentIntent, payload Payload, raw []byte) (*Result, error) {
	target, outcome := s.target(ctx, intent, payload)

	now := s.now().UTC()
	result := &Result{Reference: intent.Reference}
	var fulfilled *models.PaymentIntent

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)

		update := payments.Update{
			Status:       &target,
			OnlyIfStatus: target.AdvancesFrom(),
		}
		if intent.OrderID == nil || *intent.OrderID == "" {
			update.OrderID = &payload.OrderID
		}
		if len(raw) > 0 {
			update.ProviderPayload = types.JSONB(raw)
		}
		if target == enums.PaymentStatusFulfilled {
			update.FulfilledAt = &now
		}

		applied, err := store.UpdateByReference(ctx, intent.Reference, update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
		}
		result.Applied = applied

		if applied {
			result.Status = target
			if outcome == "" {
				outcome = metrics.OutcomeApplied
			}
			if target == enums.PaymentStatusFulfilled {
				if _, err := s.entitlements.Grant(ctx, tx, subscriptions.GrantInput{
					UserID:           intent.UserID,
					UserEmail:        intent.UserEmail,
					PaymentReference: intent.Reference,
				}); err != nil {
					return err
				}
				fulfilled = intent
			}
		} else {
			current, err := store.GetByReference(ctx, intent.Reference)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment intent")
			}
			if current == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			result.Status = current.Status
			if current.Status == target {
				outcome = metrics.OutcomeDuplicate
			} else {
				outcome = metrics.OutcomeStale
			}
		}

		return s.recordEvent(ctx, store, intent, payload, target, outcome, raw)
	})
	if err != nil {
		s.metrics.IncWebhook(metrics.OutcomeStore)
		s.logg.Error(ctx, "wallet webhook reconciliation failed", err)
		return nil, err
	}

	result.Outcome = outcome
	s.metrics.IncWebhook(outcome)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status":  result.Status.String(),
		"applied": result.Applied,
		"outcome": outcome,
	}), "wallet webhook processed")

	if fulfilled != nil {
		s.publishFulfilled(ctx, fulfilled, payload.OrderID, now)
	}
	return result, nil
}

// resolve finds the intent a delivery refers to by the signed order_id: first
// against the stored provider order id, then against the reference, since the
// provider echoes the ref it was given. The unsigned ref is only a hint and a
// delivery whose ref points elsewhere is rejected.
func (s *Service) resolve(ctx context.Context, store payments.Store, payload Payload) (*models.PaymentIntent, error) {
	intent, err := store.GetByOrderID(ctx, payload.OrderID)
	if err == nil && intent == nil {
		intent, err = store.GetByReference(ctx, payload.OrderID)
	}
	if err != nil {
		s.metrics.IncWebhook(metrics.OutcomeStore)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if intent == nil {
		s.metrics.IncWebhook(metrics.OutcomeNotFound)
		s.logg.Warn(ctx, "wallet webhook for unknown payment")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	storedOrderID := ""
	if intent.OrderID != nil {
		storedOrderID = *intent.OrderID
	}
	if (storedOrderID != "" && storedOrderID != payload.OrderID) || (payload.Ref != "" && payload.Ref != intent.Reference) {
		s.metrics.IncWebhook(metrics.OutcomeRefMismatch)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"ref":             payload.Ref,
			"reference":       intent.Reference,
			"stored_order_id": storedOrderID,
		}), "wallet webhook does not match the resolved payment")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "delivery does not match payment").
			WithDetails(map[string]any{"ref": payload.Ref})
	}
	return intent, nil
}

// replayed handles a delivery the guard has already seen. It only skips the
// update when the intent already holds the requested status or cannot move to
// it; otherwise the earlier attempt never landed and the delivery is applied.
func (s *Service) replayed(ctx context.Context, payload Payload, raw []byte) (*Result, error) {
	intent, err := s.resolve(ctx, s.store, payload)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithReference(ctx, intent.Reference)

	target, _ := s.target(ctx, intent, payload)
	if intent.Status != target && slices.Contains(target.AdvancesFrom(), intent.Status) {
		s.logg.Warn(s.logg.WithField(ctx, "status", intent.Status.String()), "wallet webhook replay found intent unreconciled; applying")
		return s.applyTo(ctx, intent, payload, raw)
	}

	if err := s.recordEvent(ctx, s.store, intent, payload, target, metrics.OutcomeReplayed, raw); err != nil {
		s.metrics.IncWebhook(metrics.OutcomeStore)
		s.logg.Error(ctx, "wallet webhook replay audit failed", err)
		return nil, err
	}
	s.metrics.IncWebhook(metrics.OutcomeReplayed)
	s.logg.Info(ctx, "wallet webhook replay ignored")
	return &Result{
		Reference: intent.Reference,
		Status:    intent.Status,
		Outcome:   metrics.OutcomeReplayed,
	}, nil
}

func (s *Service) recordEvent(ctx context.Context, store payments.Store, intent *models.PaymentIntent, payload Payload, target enums.PaymentStatus, outcome string, raw []byte) error {
	event := &models.PaymentEvent{
		PaymentReference: intent.Reference,
		OrderID:          payload.OrderID,
		ProviderStatus:   payload.Status,
		MappedStatus:     target,
		SignedAmount:     payload.Amount.Raw,
		Outcome:          outcome,
	}
	if len(raw) > 0 {
		event.Payload = types.JSONB(raw)
	}
	if err := store.InsertEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment event")
	}
	return nil
}

func (s *Service) publishFulfilled(ctx context.Context, intent *models.PaymentIntent, orderID string, at time.Time) {
	if s.publisher == nil {
		return
	}
	id, err := s.publisher.PublishJSON(ctx, EventPaymentFulfilled, FulfilledEvent{
		Reference:   intent.Reference,
		OrderID:     orderID,
		UserID:      intent.UserID,
		Amount:      security.FormatAmount(intent.Amount),
		Currency:    intent.Currency.String(),
		FulfilledAt: at,
	})
	if err != nil {
		s.logg.Error(ctx, "failed to publish payment.fulfilled event", err)
		return
	}
	s.logg.Debug(s.logg.WithField(ctx, "message_id", id), "payment.fulfilled event published")
}

func missingFields(payload Payload, signature string) []string {
	missing := []string{}
	if payload.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if signature == "" {
		missing = append(missing, "signature")
	}
	if !payload.Amount.IsSet() {
		missing = append(missing, "amount")
	}
	if payload.Status == "" {
		missing = append(missing, "status")
	}
	return missing
}

