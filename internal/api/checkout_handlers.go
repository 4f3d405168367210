package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/peakform/peakform/internal/access"
	"github.com/peakform/peakform/internal/middleware"
	"github.com/peakform/peakform/internal/payment"
	"github.com/peakform/peakform/internal/program"
	"github.com/peakform/peakform/internal/validate"
)

// CheckoutHandlers holds dependencies for starting Stripe Checkout sessions.
type CheckoutHandlers struct {
	programRepo  program.Repository
	accessRepo   access.Repository
	stripeClient payment.Client
	successURL   string
	cancelURL    string
}

// NewCheckoutHandlers creates a new CheckoutHandlers instance.
func NewCheckoutHandlers(
	programRepo program.Repository,
	accessRepo access.Repository,
	stripeClient payment.Client,
	successURL string,
	cancelURL string,
) *CheckoutHandlers {
	return &CheckoutHandlers{
		programRepo:  programRepo,
		accessRepo:   accessRepo,
		stripeClient: stripeClient,
		successURL:   successURL,
		cancelURL:    cancelURL,
	}
}

// CheckoutRequest is the body for initiating a purchase.
type CheckoutRequest struct {
	ProgramID  string `json:"program_id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// CheckoutResponse carries the provider session the client redirects to.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckout handles POST /payments/checkout. The route sits behind the
// Idempotency-Key middleware so a retried request replays the stored session
// instead of creating a second one.
func (h *CheckoutHandlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.ProgramID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "program_id is required")
		return
	}

	prog, err := h.programRepo.GetProgram(ctx, req.ProgramID)
	if err != nil {
		if errors.Is(err, program.ErrNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "program not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load program", "program_id", req.ProgramID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load program")
		return
	}
	if !prog.Published {
		WriteError(w, ctx, http.StatusConflict, ErrCodeUnpublished, "program is not available for purchase")
		return
	}

	hasAccess, err := h.accessRepo.HasAccess(ctx, userID, req.ProgramID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check existing access", "user_id", userID, "program_id", req.ProgramID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to check access")
		return
	}
	if hasAccess {
		WriteError(w, ctx, http.StatusConflict, ErrCodeAlreadyOwned, "you already have access to this program")
		return
	}

	// Client-supplied return URLs are forwarded to the provider, which sends
	// the customer's browser to them.
	successURL := h.successURL
	if req.SuccessURL != "" {
		validated, err := validate.RedirectURL(req.SuccessURL)
		if err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "success_url must be a public https URL")
			return
		}
		successURL = validated
	}
	cancelURL := h.cancelURL
	if req.CancelURL != "" {
		validated, err := validate.RedirectURL(req.CancelURL)
		if err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "cancel_url must be a public https URL")
			return
		}
		cancelURL = validated
	}

	// user_id and program_id ride as session metadata; the webhook depends
	// on them to attribute the purchase.
	session, err := h.stripeClient.CreateCheckoutSession(&payment.CheckoutParams{
		UserID:       userID,
		ProgramID:    prog.ID,
		ProgramTitle: prog.Title,
		PriceCents:   prog.PriceCents,
		Currency:     prog.Currency,
		SuccessURL:   successURL,
		CancelURL:    cancelURL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create checkout session", "user_id", userID, "program_id", prog.ID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to create checkout session")
		return
	}

	slog.InfoContext(ctx, "checkout session created",
		"user_id", userID,
		"program_id", prog.ID,
		"session_id", session.ID)

	WriteJSON(w, ctx, http.StatusCreated, CheckoutResponse{
		SessionID: session.ID,
		URL:       session.URL,
	})
}
