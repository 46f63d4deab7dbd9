package razorpay

import "encoding/json"

const EventPaymentCaptured = "payment.captured"

// WebhookEvent subset of the webhook payload that the verifier needs.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Amount  int64             `json:"amount"`
				Status  string            `json:"status"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// OrderID of the captured payment.
func (e *WebhookEvent) OrderID() string { return e.Payload.Payment.Entity.OrderID }

// PaymentID of the captured payment.
func (e *WebhookEvent) PaymentID() string { return e.Payload.Payment.Entity.ID }
