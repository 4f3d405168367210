package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/peakform/peakform/internal/access"
	"github.com/peakform/peakform/internal/payment"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// WebhookHandlers holds dependencies for the Stripe webhook endpoint, the
// write side of the payment-to-access reconciliation pipeline.
type WebhookHandlers struct {
	webhookSecret string
	eventRepo     payment.EventRepository
	accessRepo    access.Repository
	metrics       *WebhookMetrics
}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers(
	webhookSecret string,
	eventRepo payment.EventRepository,
	accessRepo access.Repository,
	metrics *WebhookMetrics,
) *WebhookHandlers {
	return &WebhookHandlers{
		webhookSecret: webhookSecret,
		eventRepo:     eventRepo,
		accessRepo:    accessRepo,
		metrics:       metrics,
	}
}

// HandleStripeWebhook processes Stripe webhook events.
// POST /internal/stripe
//
// Deliveries are at-least-once with no ordering guarantee, so every path
// through this handler must be safe to repeat. A 500 tells Stripe to
// redeliver; a 200 acknowledges the event for good.
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
		return
	}

	// Reject unsigned requests before touching the body.
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "missing Stripe-Signature header")
		return
	}

	// The raw bytes are the input to signature verification; read them before
	// any parsing.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	event, err := webhook.ConstructEvent(body, signature, h.webhookSecret)
	if err != nil {
		slog.WarnContext(ctx, "webhook signature verification failed", "error", err)
		h.metrics.IncFailures("bad_signature")
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid signature")
		return
	}

	slog.InfoContext(ctx, "webhook event received", "event_type", event.Type, "event_id", event.ID)
	h.metrics.IncEventsReceived(string(event.Type))

	// Idempotency pre-check. This is an optimization; the event log's unique
	// constraint is the actual safety net against concurrent deliveries.
	processed, err := h.eventRepo.HasProcessed(ctx, event.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check event idempotency", "event_id", event.ID, "error", err)
		h.metrics.IncFailures("persistence")
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to process webhook")
		return
	}
	if processed {
		slog.InfoContext(ctx, "webhook event already processed, ignoring", "event_id", event.ID)
		h.metrics.IncDuplicateEvents()
		writeWebhookAck(w)
		return
	}

	switch event.Type {
	case payment.EventCheckoutCompleted:
		h.handleCheckoutSessionCompleted(ctx, w, event)
	default:
		// Invoice, subscription, and unrecognized events carry no side
		// effects here; they are recorded for reconciliation and acknowledged.
		slog.InfoContext(ctx, "recording webhook event without side effects", "event_type", event.Type, "event_id", event.ID)
		h.recordAndAck(ctx, w, payment.RecordParams{
			EventID: event.ID,
			Type:    string(event.Type),
		})
	}
}

// handleCheckoutSessionCompleted grants program access for a paid checkout.
// The grant lands before the event log append: if the append fails, Stripe
// redelivers and the grant re-upsert is a no-op.
func (h *WebhookHandlers) handleCheckoutSessionCompleted(ctx context.Context, w http.ResponseWriter, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		slog.ErrorContext(ctx, "failed to parse checkout session", "event_id", event.ID, "error", err)
		h.metrics.IncFailures("malformed_event")
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "malformed event payload")
		return
	}

	userID := session.Metadata["user_id"]
	programID := session.Metadata["program_id"]
	if userID == "" || programID == "" {
		// A recognized purchase we cannot attribute. Fail the request so the
		// provider retries: redelivery is harmless and leaves time to fix the
		// metadata out of band if checkout creation is at fault.
		slog.ErrorContext(ctx, "checkout session missing required metadata",
			"event_id", event.ID,
			"session_id", session.ID,
			"has_user_id", userID != "",
			"has_program_id", programID != "")
		h.metrics.IncFailures("missing_metadata")
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "checkout session missing metadata")
		return
	}

	params := payment.RecordParams{
		EventID:           event.ID,
		Type:              string(event.Type),
		UserID:            &userID,
		ProgramID:         &programID,
		ExternalReference: &session.ID,
	}
	if session.AmountTotal != 0 {
		amount := session.AmountTotal
		params.AmountTotal = &amount
	}
	if session.Currency != "" {
		currency := string(session.Currency)
		params.Currency = &currency
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Unpaid or async payment still pending; record it and wait for the
		// follow-up event.
		slog.InfoContext(ctx, "checkout session completed without payment, no grant",
			"event_id", event.ID,
			"session_id", session.ID,
			"payment_status", session.PaymentStatus)
		h.recordAndAck(ctx, w, params)
		return
	}

	source := access.SourceStripe
	grant, err := h.accessRepo.Upsert(ctx, access.UpsertParams{
		UserID:            userID,
		ProgramID:         programID,
		AccessType:        access.TypePurchased,
		Source:            &source,
		ExternalReference: &session.ID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to upsert access grant",
			"event_id", event.ID,
			"user_id", userID,
			"program_id", programID,
			"error", err)
		h.metrics.IncFailures("persistence")
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to grant access")
		return
	}

	slog.InfoContext(ctx, "access granted",
		"event_id", event.ID,
		"user_id", grant.UserID,
		"program_id", grant.ProgramID,
		"session_id", session.ID)
	h.metrics.IncGrantsUpserted()

	h.recordAndAck(ctx, w, params)
}

// recordAndAck appends the event to the log and acknowledges the delivery.
// An append failure returns 500 so the provider redelivers; a concurrent
// delivery winning the append race counts as success.
func (h *WebhookHandlers) recordAndAck(ctx context.Context, w http.ResponseWriter, params payment.RecordParams) {
	if _, err := h.eventRepo.RecordEvent(ctx, params); err != nil {
		if errors.Is(err, payment.ErrEventAlreadyProcessed) {
			slog.InfoContext(ctx, "event recorded by concurrent delivery", "event_id", params.EventID)
			h.metrics.IncDuplicateEvents()
			writeWebhookAck(w)
			return
		}
		slog.ErrorContext(ctx, "failed to record webhook event", "event_id", params.EventID, "error", err)
		h.metrics.IncFailures("persistence")
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to record event")
		return
	}
	writeWebhookAck(w)
}

func writeWebhookAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
