package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cyberbrief/cyberbrief-backend/api/middleware"
	"github.com/cyberbrief/cyberbrief-backend/api/responses"
	"github.com/cyberbrief/cyberbrief-backend/api/validators"
	"github.com/cyberbrief/cyberbrief-backend/internal/payments"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/types"
)

const maxCouponCodeLen = 64

type PaymentsService interface {
	CreateIntent(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error)
	Status(ctx context.Context, reference string) (*payments.StatusResult, error)
}

type createPaymentRequest struct {
	Amount     types.FlexibleAmount `json:"amount"`
	Currency   string               `json:"currency" validate:"omitempty,max=8"`
	Email      string               `json:"email" validate:"required,email,max=254"`
	UserID     string               `json:"userId" validate:"required,max=128"`
	CouponCode string               `json:"couponCode" validate:"omitempty,max=64"`
}

// CreatePayment opens a payment link for the authenticated reader.
func CreatePayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !req.Amount.IsSet() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"amount": "is required"}))
			return
		}

		caller := middleware.UserIDFromContext(ctx)
		if caller == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		userID := strings.TrimSpace(req.UserID)
		if caller != userID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "userId does not match the authenticated user"))
			return
		}

		result, err := svc.CreateIntent(ctx, payments.CreateIntentInput{
			Amount:     req.Amount.Value,
			Currency:   req.Currency,
			Email:      req.Email,
			UserID:     userID,
			CouponCode: validators.SanitizeString(req.CouponCode, maxCouponCodeLen),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PaymentStatus returns the current status of a payment. The reference is
// unguessable, so the endpoint is public.
func PaymentStatus(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		reference := chi.URLParam(r, "reference")
		if logg != nil {
			ctx = logg.WithReference(ctx, reference)
		}

		result, err := svc.Status(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, result)
	}
}
