// Package confirm implements the post-checkout confirmation flow: the
// purchaser returns from the payment provider and the flow resolves whether
// the asynchronous webhook has granted access yet.
package confirm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the flow's outcome state. Loading is transient; the rest are
// terminal.
type State string

const (
	StateLoading          State = "loading"
	StateSuccess          State = "success"
	StateAlreadyHasAccess State = "already_has_access"
	StateError            State = "error"
)

// User-facing messages. The error messages distinguish "still processing"
// from a hung confirmation so the purchaser always has a next step.
const (
	MsgMissingProgram = "No program was specified. If you completed a purchase, contact support."
	MsgPending        = "Your payment may still be processing. Reload this page in a moment, or contact support if you were charged."
	MsgTimeout        = "Confirmation timed out. Reload this page to try again, or contact support if you were charged."
	MsgGranted        = "Access granted. Your program is ready."
	MsgAlreadyOwned   = "You already have access to this program."
)

// Default timings. The grace period gives the webhook a head start before
// the single verification attempt; the timeout bounds the whole run.
const (
	DefaultGracePeriod = 4 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Result is the flow's resolved outcome.
type Result struct {
	State   State  `json:"state"`
	Message string `json:"message"`
}

// StatusChecker reports whether the caller currently holds access to a
// program. Implementations must read live state, never a cached snapshot.
type StatusChecker interface {
	HasAccess(ctx context.Context, programID, sessionID string) (bool, error)
}

// FlowConfig configures a confirmation flow.
type FlowConfig struct {
	Checker     StatusChecker
	GracePeriod time.Duration
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Flow is a single-use confirmation state machine. One instance serves one
// return-from-checkout page view; a fresh page load gets a fresh Flow.
type Flow struct {
	checker StatusChecker
	grace   time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	attempted bool
	result    *Result
}

// NewFlow creates a confirmation flow with defaults applied.
func NewFlow(config FlowConfig) *Flow {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Flow{
		checker: config.Checker,
		grace:   config.GracePeriod,
		timeout: config.Timeout,
		logger:  config.Logger,
	}
}

// Run resolves the flow. Exactly one verification attempt is made per Flow;
// subsequent calls return the first resolution unchanged. A manual reload
// (a fresh Flow) is the user's retry mechanism.
func (f *Flow) Run(ctx context.Context, programID, sessionID string) Result {
	// Precondition failure needs no backend round trip.
	if programID == "" {
		return Result{State: StateError, Message: MsgMissingProgram}
	}

	f.mu.Lock()
	if f.attempted {
		cached := *f.result
		f.mu.Unlock()
		return cached
	}
	f.attempted = true
	f.mu.Unlock()

	result := f.resolve(ctx, programID, sessionID)

	f.mu.Lock()
	f.result = &result
	f.mu.Unlock()

	return result
}

func (f *Flow) resolve(ctx context.Context, programID, sessionID string) Result {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	// The webhook may have landed before the browser finished redirecting,
	// and the user may simply already own the program.
	granted, err := f.checker.HasAccess(ctx, programID, sessionID)
	if err == nil && granted {
		return Result{State: StateAlreadyHasAccess, Message: MsgAlreadyOwned}
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: StateError, Message: MsgTimeout}
		}
		f.logger.Warn("initial access check failed, continuing to verification",
			slog.String("program_id", programID),
			slog.String("error", err.Error()))
	}

	// Grace period: the webhook and the redirect race each other with no
	// ordering guarantee. Cancellation is observed here.
	timer := time.NewTimer(f.grace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{State: StateError, Message: MsgTimeout}
	case <-timer.C:
	}

	// The single verification attempt.
	granted, err = f.checker.HasAccess(ctx, programID, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: StateError, Message: MsgTimeout}
		}
		f.logger.Warn("status check failed",
			slog.String("program_id", programID),
			slog.String("error", err.Error()))
		return Result{State: StateError, Message: MsgPending}
	}
	if granted {
		return Result{State: StateSuccess, Message: MsgGranted}
	}
	return Result{State: StateError, Message: MsgPending}
}
