package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// MaxPayloadBytes caps webhook bodies; processor events are well under this.
const MaxPayloadBytes = 256 << 10

type eventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type eventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

// PaymentWebhook verifies, deduplicates and applies processor events.
func PaymentWebhook(svc eventHandler, client signingClient, guard eventGuard, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			rejectSignature(ctx, w, webhookMetrics, logg, errors.New("signature header missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			rejectSignature(ctx, w, webhookMetrics, logg, err)
			return
		}
		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithEvent(ctx, event.ID, eventType)
		}

		first, err := guard.Claim(ctx, event.ID)
		if err != nil {
			webhookMetrics.Observe(eventType, metrics.WebhookFailed)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event"))
			return
		}
		if !first {
			webhookMetrics.Observe(eventType, metrics.WebhookDuplicate)
			if logg != nil {
				logg.Info(ctx, "webhook.duplicate_event")
			}
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "webhook.release_failed", releaseErr)
			}
			webhookMetrics.Observe(eventType, metrics.WebhookFailed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch outcome {
		case stripewebhook.OutcomeApplied:
			webhookMetrics.Observe(eventType, metrics.WebhookApplied)
		default:
			webhookMetrics.Observe(eventType, metrics.WebhookIgnored)
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "webhook.event_processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": string(outcome)})
	}
}

func rejectSignature(ctx context.Context, w http.ResponseWriter, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger, err error) {
	webhookMetrics.Observe("unknown", metrics.WebhookInvalid)
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"security_event": true, "error": err.Error()})
		logg.Warn(ctx, "webhook.signature_rejected")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature"))
}
