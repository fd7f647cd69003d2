// Package merchants resolves storefront merchants and drives processor Connect onboarding.
package merchants

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const accountLinkTypeOnboarding = "account_onboarding"

// AccountAPI is the subset of the processor client used for Connect onboarding.
type AccountAPI interface {
	CreateAccount(ctx context.Context, params *stripe.AccountCreateParams) (*stripe.Account, error)
	GetAccount(ctx context.Context, id string) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, params *stripe.AccountLinkCreateParams) (*stripe.AccountLink, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// URLs holds the absolute endpoints the onboarding flow redirects through.
type URLs struct {
	// APIBaseURL is the public origin serving /merchants/{slug}/payment-onboarding/*.
	APIBaseURL   string
	DashboardURL string
}

// Service exposes merchant lookups and onboarding.
type Service interface {
	ResolveOwned(ctx context.Context, slug string, userID uuid.UUID) (*models.Merchant, error)
	Start(ctx context.Context, slug string, userID uuid.UUID) (string, error)
	Return(ctx context.Context, slug string, userID uuid.UUID) (string, error)
	RefreshFromProvider(ctx context.Context, acct *stripe.Account) (*models.MerchantPaymentAccount, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxPublisher
	api    AccountAPI
	urls   URLs
	logg   *logger.Logger
}

// NewService builds the merchant service.
func NewService(repo *Repository, tx txRunner, outbox outboxPublisher, api AccountAPI, urls URLs, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if api == nil {
		return nil, fmt.Errorf("account api required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	urls.APIBaseURL = strings.TrimRight(strings.TrimSpace(urls.APIBaseURL), "/")
	if urls.APIBaseURL == "" || strings.TrimSpace(urls.DashboardURL) == "" {
		return nil, fmt.Errorf("onboarding urls required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, api: api, urls: urls, logg: logg}, nil
}

// ResolveOwned loads the merchant by slug and checks the caller owns it.
func (s *service) ResolveOwned(ctx context.Context, slug string, userID uuid.UUID) (*models.Merchant, error) {
	merchant, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load merchant")
	}
	if userID == uuid.Nil || merchant.OwnerUserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "merchant not owned by caller")
	}
	return merchant, nil
}

// Start lazily creates the merchant's connected account and returns a fresh onboarding link.
func (s *service) Start(ctx context.Context, slug string, userID uuid.UUID) (string, error) {
	merchant, err := s.ResolveOwned(ctx, slug, userID)
	if err != nil {
		return "", err
	}
	ctx = s.logg.WithMerchantID(ctx, merchant.ID)

	account, err := s.repo.EnsurePaymentAccount(ctx, merchant.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure payment account")
	}

	accountID, err := s.ensureProviderAccount(ctx, merchant, account)
	if err != nil {
		return "", err
	}

	params := &stripe.AccountLinkCreateParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(s.onboardingURL(merchant.Slug, "start")),
		ReturnURL:  stripe.String(s.onboardingURL(merchant.Slug, "return")),
		Type:       stripe.String(accountLinkTypeOnboarding),
	}
	link, err := s.api.CreateAccountLink(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	s.logg.Info(s.logg.WithField(ctx, "provider_account_id", accountID), "merchant.onboarding_started")
	return link.URL, nil
}

func (s *service) ensureProviderAccount(ctx context.Context, merchant *models.Merchant, account *models.MerchantPaymentAccount) (string, error) {
	if account.ProviderAccountID != nil && *account.ProviderAccountID != "" {
		return *account.ProviderAccountID, nil
	}

	params := &stripe.AccountCreateParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			CardPayments: &stripe.AccountCreateCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCreateCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.AddMetadata("merchant_id", merchant.ID)
	params.AddMetadata("merchant_slug", merchant.Slug)
	params.SetIdempotencyKey("connect_account:" + merchant.ID)

	created, err := s.api.CreateAccount(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
	}

	stored, err := s.repo.SetProviderAccountID(ctx, merchant.ID, created.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist connected account")
	}
	if stored {
		return created.ID, nil
	}

	// A concurrent request stored its account first; keep that one.
	current, err := s.repo.FindPaymentAccount(ctx, merchant.ID)
	if err != nil || current == nil || current.ProviderAccountID == nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment account")
	}
	s.logg.Warn(s.logg.WithField(ctx, "discarded_account_id", created.ID), "merchant.provider_account_race")
	return *current.ProviderAccountID, nil
}

// Return refreshes the capability flags after the merchant comes back from onboarding.
func (s *service) Return(ctx context.Context, slug string, userID uuid.UUID) (string, error) {
	merchant, err := s.ResolveOwned(ctx, slug, userID)
	if err != nil {
		return "", err
	}
	ctx = s.logg.WithMerchantID(ctx, merchant.ID)

	account, err := s.repo.FindPaymentAccount(ctx, merchant.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment account")
	}
	if account == nil || account.ProviderAccountID == nil {
		s.logg.Warn(ctx, "merchant.onboarding_return_without_account")
		return s.urls.DashboardURL, nil
	}

	acct, err := s.api.GetAccount(ctx, *account.ProviderAccountID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve connected account")
	}
	if _, err := s.sync(ctx, account, acct, &outbox.ActorRef{Kind: outbox.ActorMerchant, ID: userID.String()}); err != nil {
		return "", err
	}
	return s.urls.DashboardURL, nil
}

// RefreshFromProvider applies an account.updated payload. Unknown accounts return nil without error.
func (s *service) RefreshFromProvider(ctx context.Context, acct *stripe.Account) (*models.MerchantPaymentAccount, error) {
	if acct == nil || acct.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account payload missing id")
	}
	account, err := s.repo.FindPaymentAccountByProvider(ctx, acct.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment account")
	}
	if account == nil {
		s.logg.Warn(s.logg.WithField(ctx, "provider_account_id", acct.ID), "merchant.unknown_provider_account")
		return nil, nil
	}
	return s.sync(s.logg.WithMerchantID(ctx, account.MerchantID), account, acct, &outbox.ActorRef{Kind: outbox.ActorProcessor})
}

func (s *service) sync(ctx context.Context, account *models.MerchantPaymentAccount, acct *stripe.Account, actor *outbox.ActorRef) (*models.MerchantPaymentAccount, error) {
	caps := Capabilities{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}

	var changed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		changed, err = s.repo.WithTx(tx).UpdateCapabilities(ctx, account.MerchantID, caps)
		if err != nil || !changed {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMerchantAccountSynced,
			AggregateType: enums.AggregateMerchantPaymentAccount,
			AggregateID:   account.MerchantID,
			Actor:         actor,
			Data: payloads.MerchantAccountSyncedEvent{
				MerchantID:        account.MerchantID,
				ProviderAccountID: acct.ID,
				ChargesEnabled:    caps.ChargesEnabled,
				PayoutsEnabled:    caps.PayoutsEnabled,
				DetailsSubmitted:  caps.DetailsSubmitted,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment account")
	}

	account.ChargesEnabled = caps.ChargesEnabled
	account.PayoutsEnabled = caps.PayoutsEnabled
	account.DetailsSubmitted = caps.DetailsSubmitted
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"charges_enabled": caps.ChargesEnabled,
		"payouts_enabled": caps.PayoutsEnabled,
		"changed":         changed,
	}), "merchant.payment_account_synced")
	return account, nil
}

func (s *service) onboardingURL(slug, step string) string {
	return fmt.Sprintf("%s/merchants/%s/payment-onboarding/%s", s.urls.APIBaseURL, url.PathEscape(slug), step)
}
