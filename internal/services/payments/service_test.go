package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pr-poehali-dev/dice-chess-website/internal/infra/yookassa"
	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
)

type intentStoreStub struct {
	mu       sync.Mutex
	intents  map[string]pgrepo.PurchaseRecord
	balances map[int64]int

	insertErr error
	creditErr error
}

func newIntentStoreStub() *intentStoreStub {
	return &intentStoreStub{
		intents:  make(map[string]pgrepo.PurchaseRecord),
		balances: make(map[int64]int),
	}
}

func (s *intentStoreStub) InsertPending(_ context.Context, paymentID string, playerID int64, amount, tokens int) (pgrepo.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return pgrepo.PurchaseRecord{}, s.insertErr
	}
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

func (s *intentStoreStub) CompleteAndCredit(_ context.Context, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creditErr != nil {
		return false, s.creditErr
	}
	rec, ok := s.intents[paymentID]
	if !ok || rec.Status != "pending" {
		return false, nil
	}
	rec.Status = "completed"
	s.intents[paymentID] = rec
	s.balances[rec.PlayerID] += rec.Tokens
	return true, nil
}

type gatewayStub struct {
	calls []yookassa.CreatePaymentInput
	err   error
}

func (g *gatewayStub) CreatePayment(_ context.Context, in yookassa.CreatePaymentInput) (yookassa.Payment, error) {
	g.calls = append(g.calls, in)
	if g.err != nil {
		return yookassa.Payment{}, g.err
	}
	return yookassa.Payment{
		ID:              "gw-" + in.IdempotencyKey,
		Status:          "pending",
		ConfirmationURL: "https://yookassa.test/confirm/" + in.IdempotencyKey,
	}, nil
}

func succeededEvent(paymentID string, playerID, tokens string) WebhookEvent {
	return WebhookEvent{
		Event: EventPaymentSucceeded,
		Metadata: map[string]any{
			"payment_id": paymentID,
			"user_id":    playerID,
			"tokens":     tokens,
		},
	}
}

func TestCreateIntentPersistsPendingBeforeGateway(t *testing.T) {
	intents := newIntentStoreStub()
	gateway := &gatewayStub{}
	svc := NewService(intents, gateway)

	result, err := svc.CreateIntent(context.Background(), 42, 500, 500)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if result.PaymentID == "" {
		t.Fatalf("expected a payment id")
	}
	if result.PaymentURL != "https://yookassa.test/confirm/"+result.PaymentID {
		t.Fatalf("unexpected payment url: %s", result.PaymentURL)
	}

	rec, ok := intents.intents[result.PaymentID]
	if !ok {
		t.Fatalf("pending intent was not persisted")
	}
	if rec.Status != "pending" {
		t.Fatalf("unexpected intent status: %s", rec.Status)
	}
	if rec.PlayerID != 42 || rec.Amount != 500 || rec.Tokens != 500 {
		t.Fatalf("unexpected intent row: %+v", rec)
	}

	if len(gateway.calls) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gateway.calls))
	}
	call := gateway.calls[0]
	if call.IdempotencyKey != result.PaymentID {
		t.Fatalf("idempotency key should be the payment id, got %s", call.IdempotencyKey)
	}
	if call.Metadata.PaymentID != result.PaymentID || call.Metadata.PlayerID != "42" || call.Metadata.Tokens != "500" {
		t.Fatalf("unexpected metadata: %+v", call.Metadata)
	}
	if call.AmountRUB != 500 {
		t.Fatalf("unexpected amount: %d", call.AmountRUB)
	}

	if intents.balances[42] != 0 {
		t.Fatalf("intent creation must not credit tokens, balance is %d", intents.balances[42])
	}
}

func TestCreateIntentRejectsInvalidInput(t *testing.T) {
	svc := NewService(newIntentStoreStub(), &gatewayStub{})

	cases := []struct {
		name     string
		playerID int64
		amount   int
		tokens   int
	}{
		{"zero amount", 1, 0, 100},
		{"negative amount", 1, -5, 100},
		{"zero tokens", 1, 100, 0},
		{"negative tokens", 1, 100, -1},
		{"missing player", 0, 100, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateIntent(context.Background(), tc.playerID, tc.amount, tc.tokens)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateIntentGatewayFailureKeepsPendingRow(t *testing.T) {
	intents := newIntentStoreStub()
	gateway := &gatewayStub{err: errors.New("gateway is down")}
	svc := NewService(intents, gateway)

	_, err := svc.CreateIntent(context.Background(), 7, 200, 200)
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if len(intents.intents) != 1 {
		t.Fatalf("pending row should survive a gateway failure, have %d rows", len(intents.intents))
	}
	if intents.balances[7] != 0 {
		t.Fatalf("no tokens may be credited on failure, balance is %d", intents.balances[7])
	}
}

func TestReconcileCreditsExactlyOnce(t *testing.T) {
	intents := newIntentStoreStub()
	svc := NewService(intents, &gatewayStub{})

	result, err := svc.CreateIntent(context.Background(), 42, 500, 500)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	event := succeededEvent(result.PaymentID, "42", "500")

	outcome, err := svc.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("first delivery should apply, got %s", outcome)
	}
	if intents.balances[42] != 500 {
		t.Fatalf("expected 500 tokens credited, got %d", intents.balances[42])
	}

	for i := 0; i < 3; i++ {
		outcome, err = svc.Reconcile(context.Background(), event)
		if err != nil {
			t.Fatalf("replayed reconcile: %v", err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("replay should be ignored, got %s", outcome)
		}
	}
	if intents.balances[42] != 500 {
		t.Fatalf("replays must not credit again, balance is %d", intents.balances[42])
	}
}

func TestReconcileIgnoresOtherEvents(t *testing.T) {
	intents := newIntentStoreStub()
	svc := NewService(intents, &gatewayStub{})

	result, err := svc.CreateIntent(context.Background(), 1, 100, 100)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	for _, eventName := range []string{"payment.canceled", "payment.waiting_for_capture", "refund.succeeded", ""} {
		event := succeededEvent(result.PaymentID, "1", "100")
		event.Event = eventName
		outcome, err := svc.Reconcile(context.Background(), event)
		if err != nil {
			t.Fatalf("reconcile %q: %v", eventName, err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("event %q should be ignored, got %s", eventName, outcome)
		}
	}
	if intents.balances[1] != 0 {
		t.Fatalf("non-succeeded events must not credit, balance is %d", intents.balances[1])
	}
}

func TestReconcileRejectsMalformedMetadata(t *testing.T) {
	svc := NewService(newIntentStoreStub(), &gatewayStub{})

	cases := []struct {
		name     string
		metadata map[string]any
	}{
		{"nil metadata", nil},
		{"missing payment id", map[string]any{"user_id": "1", "tokens": "100"}},
		{"missing player", map[string]any{"payment_id": "p1", "tokens": "100"}},
		{"missing tokens", map[string]any{"payment_id": "p1", "user_id": "1"}},
		{"non numeric tokens", map[string]any{"payment_id": "p1", "user_id": "1", "tokens": "lots"}},
		{"negative tokens", map[string]any{"payment_id": "p1", "user_id": "1", "tokens": "-5"}},
		{"blank payment id", map[string]any{"payment_id": "  ", "user_id": "1", "tokens": "100"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := svc.Reconcile(context.Background(), WebhookEvent{
				Event:    EventPaymentSucceeded,
				Metadata: tc.metadata,
			})
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if outcome != OutcomeRejected {
				t.Fatalf("expected rejected, got %s", outcome)
			}
		})
	}
}

func TestReconcileUnknownPaymentIDIsIgnored(t *testing.T) {
	svc := NewService(newIntentStoreStub(), &gatewayStub{})

	outcome, err := svc.Reconcile(context.Background(), succeededEvent("never-created", "1", "100"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("unknown payment id should be ignored, got %s", outcome)
	}
}

func TestReconcileAcceptsNumericMetadata(t *testing.T) {
	intents := newIntentStoreStub()
	svc := NewService(intents, &gatewayStub{})

	result, err := svc.CreateIntent(context.Background(), 9, 300, 300)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	outcome, err := svc.Reconcile(context.Background(), WebhookEvent{
		Event: EventPaymentSucceeded,
		Metadata: map[string]any{
			"payment_id": result.PaymentID,
			"user_id":    float64(9),
			"tokens":     float64(300),
		},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("numeric metadata should still apply, got %s", outcome)
	}
	if intents.balances[9] != 300 {
		t.Fatalf("expected 300 tokens credited, got %d", intents.balances[9])
	}
}

func TestReconcileStoreErrorPropagates(t *testing.T) {
	intents := newIntentStoreStub()
	svc := NewService(intents, &gatewayStub{})

	result, err := svc.CreateIntent(context.Background(), 2, 100, 100)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	intents.creditErr = errors.New("db is down")
	_, err = svc.Reconcile(context.Background(), succeededEvent(result.PaymentID, "2", "100"))
	if err == nil {
		t.Fatalf("expected the store error to propagate for gateway retry")
	}
}

func TestReconcileConcurrentDeliveriesCreditOnce(t *testing.T) {
	intents := newIntentStoreStub()
	svc := NewService(intents, &gatewayStub{})

	result, err := svc.CreateIntent(context.Background(), 42, 500, 500)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	event := succeededEvent(result.PaymentID, "42", "500")

	const deliveries = 8
	outcomes := make([]Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.Reconcile(context.Background(), event)
			if err != nil {
				t.Errorf("reconcile %d: %v", i, err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, outcome := range outcomes {
		if outcome == OutcomeApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d", applied)
	}
	if intents.balances[42] != 500 {
		t.Fatalf("expected a single credit of 500, balance is %d", intents.balances[42])
	}
}
