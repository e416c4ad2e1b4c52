// services/gateway_client.go
package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

// GatewayClient talks to the external payment gateway: deposit orders,
// withdrawal payouts and payout status lookups. All calls carry a 12s
// timeout — gateway latency is routinely multi-hundred-millisecond and a
// hung call must surface as GatewayTimeout, not block the request forever.
type GatewayClient struct {
	BaseURL string
	KeyID   string
	Secret  string
	Client  *http.Client
}

type GatewayOrder struct {
	OrderID  string  `json:"order_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

type GatewayPayout struct {
	PayoutID string  `json:"payout_id"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"` // queued | processing | processed | failed | rejected | cancelled
}

func NewGatewayClient() *GatewayClient {
	baseURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if baseURL == "" {
		log.Fatal("PAYMENT_GATEWAY_URL environment variable not set")
	}
	keyID := os.Getenv("PAYMENT_GATEWAY_KEY_ID")
	secret := os.Getenv("PAYMENT_GATEWAY_SECRET")
	if keyID == "" || secret == "" {
		log.Fatal("PAYMENT_GATEWAY_KEY_ID / PAYMENT_GATEWAY_SECRET not set")
	}

	return &GatewayClient{
		BaseURL: baseURL,
		KeyID:   keyID,
		Secret:  secret,
		Client: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

// CreateOrder opens a deposit order at the gateway and returns its opaque id.
func (g *GatewayClient) CreateOrder(amount float64, receipt string) (*GatewayOrder, error) {
	body := map[string]interface{}{
		"amount":   amount,
		"currency": "INR",
		"receipt":  receipt,
	}
	var out GatewayOrder
	if err := g.post("/v1/orders", body, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, ErrGateway("gateway returned an empty order id")
	}
	return &out, nil
}

// CreatePayout places an outbound transfer request for a withdrawal.
// destination is the bank account / UPI handle, mode is "bank" or "upi".
func (g *GatewayClient) CreatePayout(amount float64, mode, destination, reference string) (*GatewayPayout, error) {
	body := map[string]interface{}{
		"amount":      amount,
		"currency":    "INR",
		"mode":        mode,
		"destination": destination,
		"reference":   reference,
	}
	var out GatewayPayout
	if err := g.post("/v1/payouts", body, &out); err != nil {
		return nil, err
	}
	if out.PayoutID == "" {
		return nil, ErrGateway("gateway returned an empty payout id")
	}
	return &out, nil
}

// FetchPayoutStatus asks the gateway for the current status of a payout.
// Used by the reconciliation worker for payouts whose webhook never arrived.
func (g *GatewayClient) FetchPayoutStatus(payoutID string) (*GatewayPayout, error) {
	var out GatewayPayout
	if err := g.get("/v1/payouts/"+payoutID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPaymentSignature recomputes the gateway's HMAC-SHA256 over
// "orderID|paymentID" and compares it to the client-supplied signature.
func (g *GatewayClient) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.Secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (g *GatewayClient) post(path string, body interface{}, out interface{}) error {
	jsonData, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", g.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.Secret)
	return g.do(req, out)
}

func (g *GatewayClient) get(path string, out interface{}) error {
	req, err := http.NewRequest("GET", g.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.KeyID, g.Secret)
	return g.do(req, out)
}

func (g *GatewayClient) do(req *http.Request, out interface{}) error {
	resp, err := g.Client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrGatewayTimeout()
		}
		log.Printf("[GATEWAY] request to %s failed: %v", req.URL.Path, err)
		return ErrGateway("payment gateway unreachable")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Gateway error payloads stay in the log — never shown to clients.
		log.Printf("[GATEWAY] %s returned %d: %s", req.URL.Path, resp.StatusCode, string(respBody))
		return ErrGateway(fmt.Sprintf("payment gateway rejected the request (%d)", resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
