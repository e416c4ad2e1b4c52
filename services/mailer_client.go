// services/mailer_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// MailerClient delivers OTP codes and security notices through the
// notification service. Delivery is fire-and-forget: a transient failure is
// logged and never rolls back the operation that triggered the mail.
type MailerClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewMailerClient(baseURL, token string) *MailerClient {
	return &MailerClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts one message to the notification service.
func (m *MailerClient) Send(recipient, subject, body string) error {
	url := fmt.Sprintf("%s/notifications/email", m.BaseURL)

	reqBody := map[string]interface{}{
		"to":      recipient,
		"subject": subject,
		"body":    body,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.Token)

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendAsync fires the mail on a goroutine and logs any failure. Use this on
// every path where mail must never block or fail the caller.
func (m *MailerClient) SendAsync(recipient, subject, body string) {
	go func() {
		if err := m.Send(recipient, subject, body); err != nil {
			log.Printf("⚠️ [MAILER] failed to send %q to %s: %v", subject, recipient, err)
		}
	}()
}
