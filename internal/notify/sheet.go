package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SheetClient appends attendance rows through a spreadsheet webhook
// (an Apps Script web app URL accepting JSON POSTs).
type SheetClient struct {
	URL  string
	HTTP *http.Client
}

// NewSheet creates a client.
func NewSheet(webhookURL string) *SheetClient {
	return &SheetClient{
		URL:  webhookURL,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// Append posts one {name, clockIn, clockOut} row.
func (c *SheetClient) Append(ctx context.Context, evt Event) error {
	body, _ := json.Marshal(map[string]string{
		"name":     evt.Name,
		"clockIn":  evt.ClockIn,
		"clockOut": evt.ClockOut,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sheet webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sheet webhook error %s: %s", resp.Status, string(respBody))
	}
	return nil
}
