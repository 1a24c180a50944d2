package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pr-poehali-dev/dice-chess-website/internal/infra/yookassa"
	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
)

// EventPaymentSucceeded is the only gateway event that moves money locally.
// Everything else the gateway sends is acknowledged and ignored.
const EventPaymentSucceeded = "payment.succeeded"

var (
	ErrValidation = errors.New("validation error")
	ErrGateway    = errors.New("payment gateway error")
)

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
)

type IntentStore interface {
	InsertPending(ctx context.Context, paymentID string, playerID int64, amount, tokens int) (pgrepo.PurchaseRecord, error)
	CompleteAndCredit(ctx context.Context, paymentID string) (bool, error)
}

type GatewayClient interface {
	CreatePayment(ctx context.Context, in yookassa.CreatePaymentInput) (yookassa.Payment, error)
}

type Service struct {
	intents      IntentStore
	gateway      GatewayClient
	newPaymentID func() string
}

type CreateResult struct {
	PaymentID  string
	PaymentURL string
}

// WebhookEvent is the completion notification as delivered by the gateway,
// with the metadata echoed verbatim from payment creation.
type WebhookEvent struct {
	Event    string
	Metadata map[string]any
}

func NewService(intents IntentStore, gateway GatewayClient) *Service {
	return &Service{
		intents:      intents,
		gateway:      gateway,
		newPaymentID: uuid.NewString,
	}
}

// CreateIntent persists a pending intent and only then asks the gateway for a
// payment. A pending row with no external payment is inert; an external
// payment with no local row would be unreconcilable, so the order matters.
func (s *Service) CreateIntent(ctx context.Context, playerID int64, amountRUB, tokens int) (CreateResult, error) {
	if s.intents == nil || s.gateway == nil {
		return CreateResult{}, fmt.Errorf("payments dependencies are not configured")
	}
	if playerID <= 0 || amountRUB <= 0 || tokens <= 0 {
		return CreateResult{}, ErrValidation
	}

	paymentID := s.newPaymentID()
	if _, err := s.intents.InsertPending(ctx, paymentID, playerID, amountRUB, tokens); err != nil {
		return CreateResult{}, fmt.Errorf("insert pending intent: %w", err)
	}

	payment, err := s.gateway.CreatePayment(ctx, yookassa.CreatePaymentInput{
		IdempotencyKey: paymentID,
		AmountRUB:      amountRUB,
		Description:    fmt.Sprintf("Пополнение баланса: %d жетонов", tokens),
		Metadata: yookassa.Metadata{
			PaymentID: paymentID,
			PlayerID:  strconv.FormatInt(playerID, 10),
			Tokens:    strconv.Itoa(tokens),
		},
	})
	if err != nil {
		// The pending row stays. It never completes without a webhook and is
		// pruned by the cleanup job once past the redelivery horizon.
		return CreateResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	return CreateResult{
		PaymentID:  paymentID,
		PaymentURL: payment.ConfirmationURL,
	}, nil
}

// Reconcile converts a completion webhook into a local balance mutation
// exactly once. Replays and unknown payment ids are acknowledged as ignored;
// store failures propagate so the gateway retries the delivery.
func (s *Service) Reconcile(ctx context.Context, event WebhookEvent) (Outcome, error) {
	if s.intents == nil {
		return "", fmt.Errorf("intent store is nil")
	}

	if strings.TrimSpace(event.Event) != EventPaymentSucceeded {
		return OutcomeIgnored, nil
	}

	paymentID := metadataString(event.Metadata, "payment_id")
	playerID := metadataInt64(event.Metadata, "user_id")
	tokens := metadataInt64(event.Metadata, "tokens")
	if paymentID == "" || playerID <= 0 || tokens <= 0 {
		return OutcomeRejected, nil
	}

	credited, err := s.intents.CompleteAndCredit(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("complete and credit: %w", err)
	}
	if !credited {
		return OutcomeIgnored, nil
	}

	return OutcomeApplied, nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// metadataInt64 tolerates both string and numeric JSON encodings: the gateway
// echoes metadata values back as strings.
func metadataInt64(metadata map[string]any, key string) int64 {
	if metadata == nil {
		return 0
	}
	switch value := metadata[key].(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return 0
	}
}
