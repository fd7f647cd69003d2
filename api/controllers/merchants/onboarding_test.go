package merchants

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubOnboarding struct {
	slug   string
	userID uuid.UUID
	err    error
}

func (s *stubOnboarding) Start(_ context.Context, slug string, userID uuid.UUID) (string, error) {
	s.slug, s.userID = slug, userID
	return "https://connect.example.com/setup/acct_1", s.err
}

func (s *stubOnboarding) Return(_ context.Context, slug string, userID uuid.UUID) (string, error) {
	s.slug, s.userID = slug, userID
	return "https://shop.example.com/dashboard", s.err
}

func serve(svc *stubOnboarding, path, userID string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/merchants/{slug}/payment-onboarding/start", OnboardingStart(svc, nil))
	router.Get("/merchants/{slug}/payment-onboarding/return", OnboardingReturn(svc, nil))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOnboardingStartRedirectsToProcessor(t *testing.T) {
	svc := &stubOnboarding{}
	userID := uuid.New()

	rec := serve(svc, "/merchants/north-prints/payment-onboarding/start", userID.String())

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://connect.example.com/setup/acct_1" {
		t.Fatalf("unexpected location %q", got)
	}
	if svc.slug != "north-prints" || svc.userID != userID {
		t.Fatalf("unexpected call slug=%q user=%s", svc.slug, svc.userID)
	}
}

func TestOnboardingReturnRedirectsToDashboard(t *testing.T) {
	rec := serve(&stubOnboarding{}, "/merchants/north-prints/payment-onboarding/return", uuid.NewString())

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://shop.example.com/dashboard" {
		t.Fatalf("unexpected location %q", got)
	}
}

func TestOnboardingRequiresIdentity(t *testing.T) {
	rec := serve(&stubOnboarding{}, "/merchants/north-prints/payment-onboarding/start", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOnboardingSurfacesOwnershipErrors(t *testing.T) {
	svc := &stubOnboarding{err: pkgerrors.New(pkgerrors.CodeForbidden, "merchant not owned by caller")}
	rec := serve(svc, "/merchants/north-prints/payment-onboarding/start", uuid.NewString())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
