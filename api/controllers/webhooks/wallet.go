package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cyberbrief/cyberbrief-backend/api/responses"
	walletwebhook "github.com/cyberbrief/cyberbrief-backend/internal/webhooks/wallet"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
)

const defaultMaxBodyBytes = 64 << 10

type WalletWebhookService interface {
	Handle(ctx context.Context, delivery walletwebhook.Delivery) (*walletwebhook.Result, error)
}

// WalletWebhook receives payment outcome notifications from the wallet
// provider. Authenticity is proven by the payload signature alone.
func WalletWebhook(svc WalletWebhookService, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		var delivery walletwebhook.Delivery
		if err := json.Unmarshal(payload, &delivery.Payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		delivery.Raw = payload

		result, err := svc.Handle(ctx, delivery)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
