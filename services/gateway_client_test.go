package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPaymentSignature(t *testing.T) {
	g := &GatewayClient{Secret: testGatewaySecret}

	sig := signPayment("order_1", "pay_1")
	assert.True(t, g.VerifyPaymentSignature("order_1", "pay_1", sig))

	assert.False(t, g.VerifyPaymentSignature("order_1", "pay_2", sig))
	assert.False(t, g.VerifyPaymentSignature("order_2", "pay_1", sig))
	assert.False(t, g.VerifyPaymentSignature("order_1", "pay_1", "not-hex"))
	assert.False(t, g.VerifyPaymentSignature("order_1", "pay_1", ""))
}

func TestGatewayRejectionIsNotExposed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"description":"key_id invalid"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := &GatewayClient{BaseURL: srv.URL, KeyID: "k", Secret: "s", Client: &http.Client{Timeout: time.Second}}
	_, err := g.CreateOrder(100, "ref")
	require.Error(t, err)
	assert.Equal(t, CodeGatewayError, appCode(t, err))
	// The gateway's payload must never leak into the client-facing message.
	assert.NotContains(t, err.Error(), "key_id")
}

func TestGatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := &GatewayClient{BaseURL: srv.URL, KeyID: "k", Secret: "s", Client: &http.Client{Timeout: 20 * time.Millisecond}}
	_, err := g.FetchPayoutStatus("pout_1")
	require.Error(t, err)
	assert.Equal(t, CodeGatewayTimeout, appCode(t, err))
}

func TestCreateOrderRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := &GatewayClient{BaseURL: srv.URL, KeyID: "k", Secret: "s", Client: &http.Client{Timeout: time.Second}}
	_, err := g.CreateOrder(100, "ref")
	assert.Equal(t, CodeGatewayError, appCode(t, err))
}

func TestGatewayAuthHeader(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Write([]byte(`{"payout_id":"pout_1","status":"queued"}`))
	}))
	defer srv.Close()

	g := &GatewayClient{BaseURL: srv.URL, KeyID: "key_abc", Secret: "sec_xyz", Client: &http.Client{Timeout: time.Second}}
	_, err := g.FetchPayoutStatus("pout_1")
	require.NoError(t, err)
	assert.Equal(t, "key_abc", gotUser)
	assert.Equal(t, "sec_xyz", gotPass)
}
