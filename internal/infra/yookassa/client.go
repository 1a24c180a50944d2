package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pr-poehali-dev/dice-chess-website/internal/infra/httpclient"
)

const defaultAPIURL = "https://api.yookassa.ru/v3"

var ErrNotConfigured = errors.New("yookassa credentials are not configured")

// RequestError carries the gateway diagnostic body so callers can surface it.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status=%d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Config struct {
	APIURL    string
	ShopID    string
	SecretKey string
	ReturnURL string
	Timeout   time.Duration
}

type Client struct {
	apiURL     string
	shopID     string
	secretKey  string
	returnURL  string
	httpClient *http.Client
}

// Metadata is echoed back verbatim on the completion webhook and is the sole
// correlation mechanism between the external payment and the local intent.
type Metadata struct {
	PaymentID string `json:"payment_id"`
	PlayerID  string `json:"user_id"`
	Tokens    string `json:"tokens"`
}

type CreatePaymentInput struct {
	// IdempotencyKey lets the gateway deduplicate retried creation calls.
	IdempotencyKey string
	AmountRUB      int
	Description    string
	Metadata       Metadata
}

type Payment struct {
	ID              string
	Status          string
	ConfirmationURL string
}

func NewClient(cfg Config) *Client {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Client{
		apiURL:     apiURL,
		shopID:     strings.TrimSpace(cfg.ShopID),
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		returnURL:  strings.TrimSpace(cfg.ReturnURL),
		httpClient: httpclient.New(cfg.Timeout),
	}
}

func (c *Client) CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error) {
	if c.shopID == "" || c.secretKey == "" {
		return Payment{}, ErrNotConfigured
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" || in.AmountRUB <= 0 {
		return Payment{}, &RequestError{Op: "create payment", Err: errors.New("invalid create payment input")}
	}

	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%d.00", in.AmountRUB),
			"currency": "RUB",
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": c.returnURL,
		},
		"capture":     true,
		"description": in.Description,
		"metadata":    in.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Payment{}, &RequestError{Op: "encode payment payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Payment{}, &RequestError{Op: "build payment request", Err: err}
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", in.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payment{}, &RequestError{Op: "create payment", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Payment{}, &RequestError{Op: "read payment response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Payment{}, &RequestError{
			Op:         "create payment",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var decoded struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Payment{}, &RequestError{Op: "decode payment response", StatusCode: resp.StatusCode, Err: err}
	}
	if decoded.Confirmation.ConfirmationURL == "" {
		return Payment{}, &RequestError{
			Op:         "create payment",
			StatusCode: resp.StatusCode,
			Body:       "response is missing confirmation_url",
		}
	}

	return Payment{
		ID:              decoded.ID,
		Status:          decoded.Status,
		ConfirmationURL: decoded.Confirmation.ConfirmationURL,
	}, nil
}
