package http

import (
	"context"
	"io"
	"net/http"

	"github.com/TorentoFlag/skin-vault/internal/payment"
)

const webhookMaxBody = 1 << 16

// WebhookVerifier checks the provider signature and decodes the event.
type WebhookVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (payment.Event, error)
}

// WebhookProcessor applies a verified payment event to the order it names.
type WebhookProcessor interface {
	HandleWebhookEvent(ctx context.Context, ev payment.Event) error
}

// HandleStripeWebhook returns an HTTP handler for Stripe webhook delivery.
// The body is read raw so the signature check sees the exact bytes sent.
func HandleStripeWebhook(verifier WebhookVerifier, svc WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookMaxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		ev, err := verifier.ConstructEvent(body, r.Header.Get("Stripe-Signature"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidSignature, "invalid webhook signature")
			return
		}

		if err := svc.HandleWebhookEvent(r.Context(), ev); err != nil {
			// Non-2xx makes Stripe redeliver, which the handlers tolerate.
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
