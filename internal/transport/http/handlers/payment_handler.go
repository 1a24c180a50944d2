package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	authsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/auth"
	paymentsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/payments"
	"github.com/pr-poehali-dev/dice-chess-website/internal/transport/http/dto"
	httperrors "github.com/pr-poehali-dev/dice-chess-website/internal/transport/http/errors"
)

type PaymentHandler struct {
	service *paymentsvc.Service
	logger  *zap.Logger
}

func NewPaymentHandler(service *paymentsvc.Service, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.PaymentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.service.CreateIntent(r.Context(), identity.PlayerID, req.Amount, req.Tokens)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "amount and tokens must be positive")
		case errors.Is(err, paymentsvc.ErrGateway):
			h.logger.Error("payment creation failed at gateway", zap.Error(err))
			httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
				Code:    "GATEWAY_ERROR",
				Message: err.Error(),
			})
		default:
			h.logger.Error("payment creation failed", zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to create payment")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PaymentCreateResponse{
		OK:         true,
		PaymentURL: result.PaymentURL,
		PaymentID:  result.PaymentID,
	})
}

// Webhook acknowledges replays and irrelevant event types with 200 so the
// gateway stops redelivering, rejects malformed payloads with 400, and keeps
// store failures at 500 so the gateway retries instead of losing the payment.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.PaymentWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid webhook body")
		return
	}

	outcome, err := h.service.Reconcile(r.Context(), paymentsvc.WebhookEvent{
		Event:    req.Event,
		Metadata: req.Object.Metadata,
	})
	if err != nil {
		h.logger.Error("webhook reconciliation failed", zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		return
	}

	if outcome == paymentsvc.OutcomeRejected {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook metadata")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PaymentWebhookResponse{
		Status: string(outcome),
	})
}
