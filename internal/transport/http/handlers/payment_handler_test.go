package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pr-poehali-dev/dice-chess-website/internal/infra/yookassa"
	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
	authsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/auth"
	paymentsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/payments"
)

type paymentIntentStub struct {
	intents   map[string]pgrepo.PurchaseRecord
	credits   map[int64]int
	creditErr error
}

func newPaymentIntentStub() *paymentIntentStub {
	return &paymentIntentStub{
		intents: make(map[string]pgrepo.PurchaseRecord),
		credits: make(map[int64]int),
	}
}

func (s *paymentIntentStub) InsertPending(_ context.Context, paymentID string, playerID int64, amount, tokens int) (pgrepo.PurchaseRecord, error) {
	rec := pgrepo.PurchaseRecord{
		PaymentID: paymentID,
		PlayerID:  playerID,
		Amount:    amount,
		Tokens:    tokens,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	s.intents[paymentID] = rec
	return rec, nil
}

func (s *paymentIntentStub) CompleteAndCredit(_ context.Context, paymentID string) (bool, error) {
	if s.creditErr != nil {
		return false, s.creditErr
	}
	rec, ok := s.intents[paymentID]
	if !ok || rec.Status != "pending" {
		return false, nil
	}
	rec.Status = "completed"
	s.intents[paymentID] = rec
	s.credits[rec.PlayerID] += rec.Tokens
	return true, nil
}

type paymentGatewayStub struct {
	err error
}

func (g *paymentGatewayStub) CreatePayment(_ context.Context, in yookassa.CreatePaymentInput) (yookassa.Payment, error) {
	if g.err != nil {
		return yookassa.Payment{}, g.err
	}
	return yookassa.Payment{
		ID:              "gw-1",
		Status:          "pending",
		ConfirmationURL: "https://yookassa.test/confirm/" + in.IdempotencyKey,
	}, nil
}

func newPaymentHandlerForTest(intents *paymentIntentStub, gateway *paymentGatewayStub) *PaymentHandler {
	return NewPaymentHandler(paymentsvc.NewService(intents, gateway), nil)
}

func performCreatePayment(t *testing.T, h *PaymentHandler, playerID int64, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
	if playerID > 0 {
		req = req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{PlayerID: playerID, Token: "tok"}))
	}
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func performWebhook(t *testing.T, h *PaymentHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)
	return rec
}

func webhookBody(paymentID string, playerID int64, tokens int) string {
	return fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"gw-1","status":"succeeded","metadata":{"payment_id":"%s","user_id":"%d","tokens":"%d"}}}`, paymentID, playerID, tokens)
}

func TestPaymentCreateRequiresAuthentication(t *testing.T) {
	h := newPaymentHandlerForTest(newPaymentIntentStub(), &paymentGatewayStub{})

	rec := performCreatePayment(t, h, 0, `{"amount":500,"tokens":500}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentCreateReturnsConfirmationURL(t *testing.T) {
	intents := newPaymentIntentStub()
	h := newPaymentHandlerForTest(intents, &paymentGatewayStub{})

	rec := performCreatePayment(t, h, 42, `{"amount":500,"tokens":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK         bool   `json:"success"`
		PaymentURL string `json:"payment_url"`
		PaymentID  string `json:"payment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.PaymentID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.PaymentURL != "https://yookassa.test/confirm/"+resp.PaymentID {
		t.Fatalf("unexpected payment url: %s", resp.PaymentURL)
	}
	if _, ok := intents.intents[resp.PaymentID]; !ok {
		t.Fatalf("pending intent missing for %s", resp.PaymentID)
	}
}

func TestPaymentCreateValidatesBody(t *testing.T) {
	h := newPaymentHandlerForTest(newPaymentIntentStub(), &paymentGatewayStub{})

	for name, body := range map[string]string{
		"malformed json": `{"amount":`,
		"zero amount":    `{"amount":0,"tokens":500}`,
		"zero tokens":    `{"amount":500,"tokens":0}`,
		"unknown field":  `{"amount":500,"tokens":500,"bonus":true}`,
	} {
		rec := performCreatePayment(t, h, 42, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestPaymentCreateGatewayFailure(t *testing.T) {
	h := newPaymentHandlerForTest(newPaymentIntentStub(), &paymentGatewayStub{err: errors.New("gateway down")})

	rec := performCreatePayment(t, h, 42, `{"amount":500,"tokens":500}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestWebhookAppliesThenIgnoresReplay(t *testing.T) {
	intents := newPaymentIntentStub()
	h := newPaymentHandlerForTest(intents, &paymentGatewayStub{})

	createRec := performCreatePayment(t, h, 42, `{"amount":500,"tokens":500}`)
	var created struct {
		PaymentID string `json:"payment_id"`
	}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	body := webhookBody(created.PaymentID, 42, 500)

	rec := performWebhook(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	if resp.Status != "applied" {
		t.Fatalf("first delivery should apply, got %s", resp.Status)
	}
	if intents.credits[42] != 500 {
		t.Fatalf("expected 500 tokens credited, got %d", intents.credits[42])
	}

	rec = performWebhook(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode replay response: %v", err)
	}
	if resp.Status != "ignored" {
		t.Fatalf("replay should be ignored, got %s", resp.Status)
	}
	if intents.credits[42] != 500 {
		t.Fatalf("replay must not credit again, got %d", intents.credits[42])
	}
}

func TestWebhookRejectsMalformedPayloads(t *testing.T) {
	h := newPaymentHandlerForTest(newPaymentIntentStub(), &paymentGatewayStub{})

	for name, body := range map[string]string{
		"broken json":      `{"event":`,
		"missing metadata": `{"event":"payment.succeeded","object":{"id":"gw-1","status":"succeeded"}}`,
		"bad tokens":       `{"event":"payment.succeeded","object":{"metadata":{"payment_id":"p1","user_id":"1","tokens":"none"}}}`,
	} {
		rec := performWebhook(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestWebhookAcknowledgesIrrelevantEvents(t *testing.T) {
	h := newPaymentHandlerForTest(newPaymentIntentStub(), &paymentGatewayStub{})

	rec := performWebhook(t, h, `{"event":"payment.canceled","object":{"id":"gw-1","status":"canceled","metadata":{"payment_id":"p1","user_id":"1","tokens":"100"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for irrelevant event, got %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ignored" {
		t.Fatalf("expected ignored, got %s", resp.Status)
	}
}

func TestWebhookStoreErrorIs500(t *testing.T) {
	intents := newPaymentIntentStub()
	intents.creditErr = errors.New("db down")
	h := newPaymentHandlerForTest(intents, &paymentGatewayStub{})

	rec := performWebhook(t, h, webhookBody("p1", 1, 100))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure must be 500 so the gateway retries, got %d", rec.Code)
	}
}
