package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zapfood/zapfood/internal/conversation"
	"github.com/zapfood/zapfood/internal/handler"
	"github.com/zapfood/zapfood/internal/payment"
)

func NewRouter(reconciler *payment.Reconciler, flow *conversation.Flow, providerName string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	paymentWebhook := handler.NewPaymentWebhookHandler(reconciler, providerName)
	messageWebhook := handler.NewMessageWebhookHandler(flow)

	r.Post("/webhooks/payment", paymentWebhook.Handle)
	r.Post("/webhooks/message", messageWebhook.Handle)

	return r
}
