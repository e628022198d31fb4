package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/rs/zerolog"
)

// deliveryRetryIntervals pace redelivery attempts to the collaborator.
var deliveryRetryIntervals = []time.Duration{
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// DeliveryPayload is the JSON structure posted to the delivery collaborator.
// The collaborator resolves the identifier to a channel (email, SMS).
type DeliveryPayload struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
	Code       string `json:"code"`
	Timestamp  int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPCodeDeliverer implements ports.CodeDeliverer by posting codes to an
// out-of-process delivery collaborator.
type HTTPCodeDeliverer struct {
	url        string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewHTTPCodeDeliverer creates a new HTTP-backed code deliverer.
func NewHTTPCodeDeliverer(url string, httpClient HTTPClient, log zerolog.Logger) *HTTPCodeDeliverer {
	return &HTTPCodeDeliverer{
		url:        url,
		httpClient: httpClient,
		log:        log,
	}
}

// Deliver posts the code to the collaborator, retrying transient failures.
// The plaintext code never reaches the log stream.
func (s *HTTPCodeDeliverer) Deliver(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string) error {
	payload := DeliveryPayload{
		Identifier: identifier,
		Purpose:    string(purpose),
		Code:       code,
		Timestamp:  time.Now().Unix(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(deliveryRetryIntervals); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(deliveryRetryIntervals[attempt-1]):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payloadBytes))
		if err != nil {
			return fmt.Errorf("create delivery request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			s.log.Warn().Err(err).Str("purpose", string(purpose)).Int("attempt", attempt+1).Msg("code delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("purpose", string(purpose)).Int("attempt", attempt+1).Msg("code delivered")
			return nil
		}

		lastErr = fmt.Errorf("delivery collaborator returned %d", resp.StatusCode)
		s.log.Warn().Int("status", resp.StatusCode).Str("purpose", string(purpose)).Int("attempt", attempt+1).Msg("code delivery non-2xx, retrying")
	}

	return fmt.Errorf("code delivery exhausted retries: %w", lastErr)
}

// LogCodeDeliverer is the development fallback used when no delivery
// collaborator is configured. Codes land in the debug log, so it must never
// run in production.
type LogCodeDeliverer struct {
	log zerolog.Logger
}

// NewLogCodeDeliverer creates a log-only code deliverer.
func NewLogCodeDeliverer(log zerolog.Logger) *LogCodeDeliverer {
	return &LogCodeDeliverer{log: log}
}

// Deliver writes the code to the debug log.
func (s *LogCodeDeliverer) Deliver(_ context.Context, identifier string, purpose domain.OTPPurpose, code string) error {
	s.log.Debug().
		Str("identifier", identifier).
		Str("purpose", string(purpose)).
		Str("code", code).
		Msg("otp code issued (log delivery)")
	return nil
}
