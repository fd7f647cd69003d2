package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type merchantResolver interface {
	ResolveOwned(ctx context.Context, slug string, userID uuid.UUID) (*models.Merchant, error)
}

// Detail returns the public view of an order by its code.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		code, err := orderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// MerchantList pages through orders containing the caller's merchant items, newest first.
func MerchantList(merchants merchantResolver, svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if merchants == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		merchant, err := resolveMerchant(r, merchants)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := statusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListForMerchant(r.Context(), merchant.ID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func statusFilter(r *http.Request) (enums.PaymentStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return "", nil
	}
	status, err := enums.ParsePaymentStatus(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
			WithDetails(map[string]any{"field": "status"})
	}
	return status, nil
}

// MarkPaid settles an offline order on behalf of the caller's merchant.
func MarkPaid(merchants merchantResolver, svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if merchants == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		merchant, err := resolveMerchant(r, merchants)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, err := orderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderCode(logg.WithMerchantID(ctx, merchant.ID), code)
		}
		actor := &outbox.ActorRef{Kind: outbox.ActorMerchant, ID: middleware.UserIDFromContext(ctx)}
		order, err := svc.MarkPaidOffline(ctx, merchant.ID, code, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

func resolveMerchant(r *http.Request, merchants merchantResolver) (*models.Merchant, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant slug is required")
	}
	return merchants.ResolveOwned(r.Context(), slug, userID)
}

func orderCodeParam(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	return code, nil
}
