package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/classify"
	"github.com/zapfood/zapfood/internal/conversation"
	"github.com/zapfood/zapfood/internal/payment"
)

// The collaborators below are thin wiring around the contracts in
// internal/: a JSON client for the billing API, a JSON client for the
// messaging channel, and the keyword classifier when no NLU service is set.

func newClassifierFromEnv() classify.Classifier {
	return classify.NewKeywordClassifier()
}

func newSenderFromEnv() conversation.Sender {
	if url := os.Getenv("MESSAGE_API_URL"); url != "" {
		return &httpSender{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	}
	log.Warn().Msg("MESSAGE_API_URL not set, outbound messages will only be logged")
	return &logSender{}
}

func newProviderFromEnv() payment.Provider {
	base := os.Getenv("PAYMENT_API_URL")
	if base == "" {
		log.Fatal().Msg("PAYMENT_API_URL is required")
	}
	return &httpProvider{
		base:   base,
		token:  os.Getenv("PAYMENT_API_TOKEN"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type logSender struct{}

func (s *logSender) Send(_ context.Context, to, text string) error {
	log.Info().Str("to", to).Str("text", text).Msg("send (dry-run)")
	return nil
}

type httpSender struct {
	url    string
	client *http.Client
}

func (s *httpSender) Send(ctx context.Context, to, text string) error {
	body, err := json.Marshal(map[string]string{"to": to, "text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("message api returned %d", resp.StatusCode)
	}
	return nil
}

type httpProvider struct {
	base   string
	token  string
	client *http.Client
}

func (p *httpProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", payment.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: billing api returned %d", payment.ErrUpstream, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (p *httpProvider) CreatePayment(ctx context.Context, in payment.CreatePaymentInput) (*payment.CreatePaymentResult, error) {
	req := map[string]any{
		"order_id":     in.OrderID.String(),
		"amount_cents": in.AmountCents,
		"method":       in.Method,
		"split": map[string]int64{
			"platform_fee_cents":      in.Split.PlatformFeeCents,
			"restaurant_amount_cents": in.Split.RestaurantAmountCents,
		},
	}
	var out struct {
		PaymentID   string `json:"payment_id"`
		PaymentLink string `json:"payment_link"`
		QRCode      string `json:"qr_code"`
		Status      string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/payments", req, &out); err != nil {
		return nil, err
	}
	return &payment.CreatePaymentResult{
		PaymentID:   out.PaymentID,
		PaymentLink: out.PaymentLink,
		QRCode:      out.QRCode,
		Status:      out.Status,
	}, nil
}

func (p *httpProvider) ConfirmPayment(ctx context.Context, paymentID string) (*payment.Confirmation, error) {
	var out struct {
		Status                string    `json:"status"`
		PaidAt                time.Time `json:"paid_at"`
		AmountCents           int64     `json:"amount_cents"`
		PlatformFeeCents      int64     `json:"platform_fee_cents"`
		RestaurantAmountCents int64     `json:"restaurant_amount_cents"`
	}
	if err := p.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &payment.Confirmation{
		Status:                out.Status,
		PaidAt:                out.PaidAt,
		AmountCents:           out.AmountCents,
		PlatformFeeCents:      out.PlatformFeeCents,
		RestaurantAmountCents: out.RestaurantAmountCents,
	}, nil
}

func (p *httpProvider) CancelPayment(ctx context.Context, paymentID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := p.do(ctx, http.MethodDelete, "/payments/"+paymentID, nil, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}
