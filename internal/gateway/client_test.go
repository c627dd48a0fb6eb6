package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"backoffice/internal/core"
	"backoffice/internal/gateway"

	"github.com/shopspring/decimal"
)

func TestInitializeReturnsPaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"link":"https://pay.example/ck_123","id":"ext-42"}}`))
	}))
	defer srv.Close()

	c := gateway.NewClient(srv.URL, "sk_test")
	res, err := c.Initialize(context.Background(), core.GatewayInitRequest{
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		Reference: "PAY-abc",
		Customer:  core.GatewayCustomer{Email: "a@b.co", Name: "A B"},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res.PaymentLink != "https://pay.example/ck_123" {
		t.Errorf("wrong payment link: %s", res.PaymentLink)
	}
	if res.ExternalRef != "ext-42" {
		t.Errorf("wrong external ref: %s", res.ExternalRef)
	}
}

func TestInitializeRejectedByProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"invalid currency"}`))
	}))
	defer srv.Close()

	c := gateway.NewClient(srv.URL, "sk_test")
	_, err := c.Initialize(context.Background(), core.GatewayInitRequest{
		Amount: decimal.NewFromInt(100), Currency: "XXX", Reference: "PAY-abc",
	})
	if err == nil {
		t.Fatal("expected error for rejected initialization")
	}
}

func TestVerifyReportsProviderOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/verify_by_reference" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("tx_ref"); got != "PAY-abc" {
			t.Errorf("unexpected tx_ref: %q", got)
		}
		w.Write([]byte(`{"status":"success","data":{"status":"successful","amount":250.50,"currency":"USD","card":{"type":"visa","last_4digits":"4242"}}}`))
	}))
	defer srv.Close()

	c := gateway.NewClient(srv.URL, "sk_test")
	res, err := c.Verify(context.Background(), "PAY-abc")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Status != "successful" {
		t.Errorf("wrong status: %s", res.Status)
	}
	if !res.Amount.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("wrong amount: %s", res.Amount)
	}
	if res.CardLast4 != "4242" {
		t.Errorf("wrong card last4: %s", res.CardLast4)
	}
}

func TestVerifyHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c := gateway.NewClient(srv.URL, "sk_test")
	if _, err := c.Verify(context.Background(), "PAY-abc"); err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}

func TestTransportFailureRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server does not support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte(`{"status":"success","data":{"status":"successful","amount":10,"currency":"USD"}}`))
	}))
	defer srv.Close()

	c := gateway.NewClient(srv.URL, "sk_test")
	res, err := c.Verify(context.Background(), "PAY-retry")
	if err != nil {
		t.Fatalf("Verify after retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if res.Status != "successful" {
		t.Errorf("wrong status after retry: %s", res.Status)
	}
}
