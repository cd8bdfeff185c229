package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitiatePayment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/initiate-pay" {
			t.Fatalf("path = %s, want /initiate-pay", r.URL.Path)
		}
		if r.Header.Get("apiuser") != "user" || r.Header.Get("apikey") != "key" {
			t.Fatalf("missing credentials headers: %v", r.Header)
		}

		var req PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Amount != 2000 || req.ExternalID != "tx-1" {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PaymentLink{
			Message: "Request successful",
			Link:    "https://pay.example/abc",
			TransID: "gw-1",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "user", "key", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	link, err := client.InitiatePayment(ctx, PaymentRequest{Amount: 2000, ExternalID: "tx-1"})
	if err != nil {
		t.Fatalf("InitiatePayment error: %v", err)
	}
	if link.Link != "https://pay.example/abc" || link.TransID != "gw-1" {
		t.Fatalf("unexpected link: %+v", link)
	}
}

func TestInitiatePayment_ErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"amount must be at least 100"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "user", "key", time.Second)

	_, err := client.InitiatePayment(context.Background(), PaymentRequest{Amount: 50, ExternalID: "tx-1"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.Message != "amount must be at least 100" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestInitiatePayment_IncompleteResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "user", "key", time.Second)

	if _, err := client.InitiatePayment(context.Background(), PaymentRequest{Amount: 500, ExternalID: "tx-1"}); err == nil {
		t.Fatalf("expected error for response without link")
	}
}

func TestInitiatePayment_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	client := NewClient(ts.URL, "user", "key", 50*time.Millisecond)

	start := time.Now()
	_, err := client.InitiatePayment(context.Background(), PaymentRequest{Amount: 500, ExternalID: "tx-1"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestPaymentStatus_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/payment-status/gw-1" {
			t.Fatalf("path = %s, want /payment-status/gw-1", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Transaction{
			TransID:    "gw-1",
			Status:     "SUCCESSFUL",
			Amount:     2000,
			ExternalID: "tx-1",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "user", "key", time.Second)

	tx, err := client.PaymentStatus(context.Background(), "gw-1")
	if err != nil {
		t.Fatalf("PaymentStatus error: %v", err)
	}
	if tx.Status != "SUCCESSFUL" || tx.ExternalID != "tx-1" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("", "", "", 0)

	if _, err := client.PaymentStatus(context.Background(), "gw-1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNewClient_AddsScheme(t *testing.T) {
	c := NewClient("gateway.local:9000/", "", "", 0)
	if c.baseURL != "http://gateway.local:9000" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
	if c.httpClient.Timeout != defaultTimeout {
		t.Fatalf("timeout = %v, want %v", c.httpClient.Timeout, defaultTimeout)
	}
}
