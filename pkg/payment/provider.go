package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/piatahub/piata-backend/pkg/config"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/logger"
)

// Result carries the provider reference for a successful money movement.
type Result struct {
	ProviderRef string
}

// Provider is the external payment boundary. The settlement engine only ever
// calls this interface; the concrete adapter is chosen once at startup.
type Provider interface {
	Name() string
	ExecutePayout(ctx context.Context, payout *models.Payout) (Result, error)
	ExecuteRefund(ctx context.Context, refund *models.Refund) (Result, error)
}

// ProviderError wraps a failed provider call with a stable reason string that
// lands in the entity's failure_reason column.
type ProviderError struct {
	Reason  string
	Timeout bool
	cause   error
}

func (e *ProviderError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("provider: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("provider: %s", e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// NewProviderError builds a provider error with the given reason.
func NewProviderError(reason string, cause error) *ProviderError {
	return &ProviderError{Reason: reason, cause: cause}
}

// NewTimeoutError marks a provider call that exceeded its deadline. The
// entity is left FAILED("timeout"), never PROCESSING.
func NewTimeoutError(cause error) *ProviderError {
	return &ProviderError{Reason: "timeout", Timeout: true, cause: cause}
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) *ProviderError {
	var typed *ProviderError
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// FailureReason returns the stable reason string for err, falling back to the
// raw error text for unexpected failures.
func FailureReason(err error) string {
	if typed := AsProviderError(err); typed != nil {
		return typed.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewFromConfig selects the configured provider adapter.
func NewFromConfig(cfg config.PaymentConfig, logg *logger.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mock", "":
		return NewMockProvider(), nil
	case "netopia":
		return NewNetopiaProvider(cfg, logg)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
