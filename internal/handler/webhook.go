package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/conversation"
	"github.com/zapfood/zapfood/internal/payment"
)

// PaymentWebhookHandler receives provider callbacks. Responses follow the
// redelivery contract: 200 for every acknowledged outcome (including
// duplicates and unknown payment ids), 5xx only when a retry is wanted.
type PaymentWebhookHandler struct {
	reconciler *payment.Reconciler
	provider   string
}

func NewPaymentWebhookHandler(reconciler *payment.Reconciler, provider string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{reconciler: reconciler, provider: provider}
}

type paymentWebhookRequest struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	PaymentID string `json:"payment_id"`
}

func (h *PaymentWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.reconciler.HandleEvent(r.Context(), payment.Event{
		Provider:  h.provider,
		EventID:   req.EventID,
		Type:      req.EventType,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		if errors.Is(err, payment.ErrUpstream) {
			log.Warn().Err(err).Str("event_id", req.EventID).Msg("handler: provider unavailable, requesting redelivery")
			http.Error(w, "provider unavailable", http.StatusBadGateway)
			return
		}
		log.Error().Err(err).Str("event_id", req.EventID).Msg("handler: webhook processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// MessageWebhookHandler receives inbound customer messages from the channel
// adapter.
type MessageWebhookHandler struct {
	flow *conversation.Flow
}

func NewMessageWebhookHandler(flow *conversation.Flow) *MessageWebhookHandler {
	return &MessageWebhookHandler{flow: flow}
}

type messageWebhookRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (h *MessageWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req messageWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.From == "" || req.Text == "" {
		http.Error(w, "from and text are required", http.StatusBadRequest)
		return
	}

	if err := h.flow.HandleMessage(r.Context(), req.From, req.Text); err != nil {
		log.Error().Err(err).Str("from", req.From).Msg("handler: message processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
