package dto

type PaymentCreateRequest struct {
	Amount int `json:"amount"`
	Tokens int `json:"tokens"`
}

type PaymentCreateResponse struct {
	OK         bool   `json:"success"`
	PaymentURL string `json:"payment_url"`
	PaymentID  string `json:"payment_id"`
}

// PaymentWebhookRequest mirrors the gateway notification shape: an event type
// plus the payment object whose metadata echoes what we sent at creation.
type PaymentWebhookRequest struct {
	Event  string               `json:"event"`
	Object PaymentWebhookObject `json:"object"`
}

type PaymentWebhookObject struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type PaymentWebhookResponse struct {
	Status string `json:"status"`
}
