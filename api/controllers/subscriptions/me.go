package subscriptions

import (
	"context"
	"net/http"

	"github.com/cyberbrief/cyberbrief-backend/api/middleware"
	"github.com/cyberbrief/cyberbrief-backend/api/responses"
	subscriptionsvc "github.com/cyberbrief/cyberbrief-backend/internal/subscriptions"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
)

type entitlementReader interface {
	Get(ctx context.Context, userID string) (*subscriptionsvc.Entitlement, error)
}

// Me returns the caller's entitlement.
func Me(svc entitlementReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		entitlement, err := svc.Get(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, entitlement)
	}
}
