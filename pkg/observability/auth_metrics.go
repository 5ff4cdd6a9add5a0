package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded on auth.attempts
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuthMetrics records authentication attempts
type AuthMetrics struct {
	attempts metric.Int64Counter
}

// NewAuthMetrics registers the auth instruments on the global meter provider
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.GetMeterProvider().Meter("identity-service/auth")

	attempts, err := meter.Int64Counter(
		"auth.attempts",
		metric.WithDescription("Authentication attempts by method and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.attempts counter: %w", err)
	}

	return &AuthMetrics{attempts: attempts}, nil
}

// RecordAttempt counts one attempt. A nil receiver records nothing.
func (m *AuthMetrics) RecordAttempt(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}
