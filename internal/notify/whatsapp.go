// Package notify delivers best-effort attendance notifications to a
// WhatsApp gateway and a spreadsheet webhook. Deliveries happen after the
// attendance write has committed; a failed delivery is logged and lost.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event is the payload published for every successful scan. Clock strings
// are already formatted in the reference timezone; ClockOut is empty until
// the entry is closed.
type Event struct {
	Event    string `json:"event"`
	Name     string `json:"name"`
	ClockIn  string `json:"clockIn"`
	ClockOut string `json:"clockOut"`
}

// WhatsAppClient sends templated messages through a Fonnte-style gateway:
// form-encoded POST with the API token in the Authorization header.
type WhatsAppClient struct {
	Endpoint  string
	Token     string
	Recipient string
	HTTP      *http.Client
}

// NewWhatsApp creates a client.
func NewWhatsApp(endpoint, token, recipient string) *WhatsAppClient {
	return &WhatsAppClient{
		Endpoint:  endpoint,
		Token:     token,
		Recipient: recipient,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the templated message for evt.
func (c *WhatsAppClient) Send(ctx context.Context, evt Event) error {
	when := evt.ClockIn
	if evt.Event == "Clock Out" && evt.ClockOut != "" {
		when = evt.ClockOut
	}
	message := fmt.Sprintf("[%s] %s hadir pada %s", evt.Event, evt.Name, when)

	form := url.Values{}
	form.Set("target", c.Recipient)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp gateway error %s: %s", resp.Status, string(body))
	}
	return nil
}
