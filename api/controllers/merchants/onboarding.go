// Package merchants serves the merchant-facing payment onboarding redirects.
package merchants

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type onboardingService interface {
	Start(ctx context.Context, slug string, userID uuid.UUID) (string, error)
	Return(ctx context.Context, slug string, userID uuid.UUID) (string, error)
}

// OnboardingStart redirects the merchant owner to the processor's hosted onboarding.
func OnboardingStart(svc onboardingService, logg *logger.Logger) http.HandlerFunc {
	return redirectHandler(logg, func(ctx context.Context, slug string, userID uuid.UUID) (string, error) {
		if svc == nil {
			return "", pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable")
		}
		return svc.Start(ctx, slug, userID)
	})
}

// OnboardingReturn syncs capability flags and sends the owner back to the dashboard.
func OnboardingReturn(svc onboardingService, logg *logger.Logger) http.HandlerFunc {
	return redirectHandler(logg, func(ctx context.Context, slug string, userID uuid.UUID) (string, error) {
		if svc == nil {
			return "", pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable")
		}
		return svc.Return(ctx, slug, userID)
	})
}

func redirectHandler(logg *logger.Logger, next func(ctx context.Context, slug string, userID uuid.UUID) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant slug is required"))
			return
		}

		target, err := next(r.Context(), slug, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}
