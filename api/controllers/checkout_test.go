package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCheckoutService struct {
	lastRequest checkoutsvc.Request
	retried     string
	err         error
}

func (s *stubCheckoutService) CheckoutOnline(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.OnlineResult, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.OnlineResult{OrderCode: "ORD-1", PaymentSessionID: "cs_1", RedirectURL: "https://pay.example.com/cs_1"}, nil
}

func (s *stubCheckoutService) CheckoutOffline(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.OfflineResult, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.OfflineResult{OrderCode: "ORD-2"}, nil
}

func (s *stubCheckoutService) RetrySession(ctx context.Context, code string) (*checkoutsvc.OnlineResult, error) {
	s.retried = code
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.OnlineResult{OrderCode: code, PaymentSessionID: "cs_2", RedirectURL: "https://pay.example.com/cs_2"}, nil
}

const checkoutBody = `{
  "customer": {"name": "Ada", "email": "ada@example.com", "phone": "+85212345678"},
  "shipping_address": {"country": "HK", "city": "Hong Kong", "address": "1 Queen's Road"},
  "note": "  leave at door  ",
  "items": [
    {"merchant_id": "m1", "media_id": " p1 ", "quantity": 2, "unit_price": "0.01", "currency": "USD"}
  ]
}`

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestCheckoutOnlineReturnsCreatedSession(t *testing.T) {
	svc := &stubCheckoutService{}
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody))
	rec := httptest.NewRecorder()

	CheckoutOnline(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["redirect_url"] != "https://pay.example.com/cs_1" || data["order_code"] != "ORD-1" {
		t.Fatalf("unexpected payload %v", data)
	}
	if len(svc.lastRequest.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(svc.lastRequest.Items))
	}
	line := svc.lastRequest.Items[0]
	if line.MediaID != "p1" || line.Quantity != 2 {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.UnitPrice != nil || line.Currency != "" {
		t.Fatalf("client price must not reach the service: %+v", line)
	}
	if svc.lastRequest.Note == nil || *svc.lastRequest.Note != "leave at door" {
		t.Fatalf("expected trimmed note, got %v", svc.lastRequest.Note)
	}
}

func TestCheckoutOnlineSurfacesErrorKind(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindEmptyCart, "cart has no items")}
	body := `{"customer":{"name":"Ada","email":"ada@example.com","phone":"1"},"shipping_address":{"country":"HK","city":"HK","address":"x"},"items":[]}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()

	CheckoutOnline(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errBody := decodeEnvelope(t, rec)["error"].(map[string]any)
	if errBody["kind"] != string(pkgerrors.KindEmptyCart) {
		t.Fatalf("expected empty_cart kind, got %v", errBody)
	}
}

func TestCheckoutCartProblemsAreBadRequests(t *testing.T) {
	_, notPayable := payments.ResolveDestination([]string{"m1"}, nil)
	cases := map[pkgerrors.Kind]error{
		pkgerrors.KindMerchantNotPayable: notPayable,
		pkgerrors.KindItemUnavailable:    pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindItemUnavailable, "1 item(s) are no longer available"),
	}
	for kind, err := range cases {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody))
		rec := httptest.NewRecorder()

		CheckoutOnline(&stubCheckoutService{err: err}, nil).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", kind, rec.Code)
		}
		errBody := decodeEnvelope(t, rec)["error"].(map[string]any)
		if errBody["kind"] != string(kind) {
			t.Fatalf("expected %s kind, got %v", kind, errBody)
		}
	}
}

func TestCheckoutOnlineUpstreamFailureIsRetryable(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.Newf(pkgerrors.CodeDependency, pkgerrors.KindSessionCreationFailed, "payment session unavailable").
		WithDetails(map[string]any{"order_code": "ORD-9"})}
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutBody))
	rec := httptest.NewRecorder()

	CheckoutOnline(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	errBody := decodeEnvelope(t, rec)["error"].(map[string]any)
	details, _ := errBody["details"].(map[string]any)
	if details["order_code"] != "ORD-9" {
		t.Fatalf("expected order code in details, got %v", errBody)
	}
}

func TestCheckoutRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"customer":{},"shipping_address":{"country":"HK","city":"a","address":"b"},"items":[],"discount":5}`,
		"bad quantity":  `{"customer":{"name":"a","email":"a@b.co","phone":"1"},"shipping_address":{"country":"HK","city":"a","address":"b"},"items":[{"merchant_id":"m","media_id":"p","quantity":0}]}`,
		"bad country":   `{"customer":{"name":"a","email":"a@b.co","phone":"1"},"shipping_address":{"country":"HKG","city":"a","address":"b"},"items":[]}`,
		"not json":      `customer=ada`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutService{}
			req := httptest.NewRequest(http.MethodPost, "/checkout/offline", strings.NewReader(body))
			rec := httptest.NewRecorder()

			CheckoutOffline(svc, nil).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.lastRequest.Items != nil {
				t.Fatal("service must not be called")
			}
		})
	}
}

func TestCheckoutOfflineReturnsOrderCode(t *testing.T) {
	svc := &stubCheckoutService{}
	req := httptest.NewRequest(http.MethodPost, "/checkout/offline", strings.NewReader(checkoutBody))
	rec := httptest.NewRecorder()

	CheckoutOffline(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["order_code"] != "ORD-2" {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestRetryPaymentSessionUsesPathCode(t *testing.T) {
	svc := &stubCheckoutService{}
	router := chi.NewRouter()
	router.Post("/orders/{orderCode}/payment-session", RetryPaymentSession(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/orders/ORD-7/payment-session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.retried != "ORD-7" {
		t.Fatalf("expected retry for ORD-7, got %q", svc.retried)
	}
}
