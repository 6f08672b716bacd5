/**
 * @description
 * This file contains the core business logic for the pairing-service. The `Service`
 * struct orchestrates offline request submission: validating input, deriving the
 * secret fingerprint, delegating the atomic pairing transaction to the repository,
 * and firing best-effort notifications after a settled transfer has committed.
 *
 * Key features:
 * - All domain validation happens here, before any row is written.
 * - The repository owns the transactional pairing span; this layer never sees
 *   a partially settled state.
 * - Notification failures are logged and discarded; they never change the
 *   committed financial facts.
 *
 * @dependencies
 * - context, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For exact monetary validation.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offpay/pairing-service/internal/domain"
	"github.com/offpay/pairing-service/internal/store"
)

// SubmitRateLimiter is the contract for distributed submission rate limiting.
// A nil limiter disables the check.
type SubmitRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for offline payment pairing.
type Service struct {
	repo          store.Repository
	fingerprinter *Fingerprinter
	notifier      *Notifier

	rateLimiter          SubmitRateLimiter
	submitLimitPerMinute int
}

// NewService creates a new pairing service instance.
func NewService(repo store.Repository, fingerprinter *Fingerprinter, notifier *Notifier) *Service {
	return &Service{
		repo:          repo,
		fingerprinter: fingerprinter,
		notifier:      notifier,
	}
}

// SetSubmitRateLimiter enables per-account submission rate limiting.
func (s *Service) SetSubmitRateLimiter(limiter SubmitRateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.submitLimitPerMinute = limitPerMinute
}

// SubmitRequest validates and records one offline request, pairing and
// settling it when a counterpart is available. Returns the committed outcome.
func (s *Service) SubmitRequest(ctx context.Context, payload domain.SubmitRequestPayload) (*domain.SubmitOutcome, error) {
	if err := validateSubmitPayload(payload); err != nil {
		return nil, err
	}

	if s.rateLimiter != nil && s.submitLimitPerMinute > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "submit_request", payload.AccountID.String(), s.submitLimitPerMinute, time.Minute)
		if err != nil {
			// Rate limiting is a hardening layer, not a correctness one:
			// if Redis is down the submission proceeds.
			log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing submission\" account_id=%s err=%v", payload.AccountID, err)
		} else if count > s.submitLimitPerMinute {
			return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	params := store.SubmitParams{
		AccountID:         payload.AccountID,
		Mode:              payload.Mode,
		Amount:            payload.Amount,
		SecretFingerprint: s.fingerprinter.Fingerprint(payload.SecretCode),
		Nonce:             payload.Nonce,
		LocalRef:          payload.LocalRef,
	}

	outcome, err := s.repo.SubmitOfflineRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app msg=\"offline request processed\" request_id=%s account_id=%s mode=%s outcome=%s",
		outcome.Request.ID, payload.AccountID, payload.Mode, outcome.Outcome)

	// The transfer is durable at this point; notification runs strictly after
	// commit and its failure is never surfaced to the caller.
	if outcome.Outcome == domain.OutcomePaired {
		s.notifier.NotifyTransferSettled(ctx, outcome)
	}

	return outcome, nil
}

// GetRequestStatus returns the read-only projection for status polling.
func (s *Service) GetRequestStatus(ctx context.Context, requestID uuid.UUID) (*domain.RequestStatus, error) {
	req, err := s.repo.FindOfflineRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	status := &domain.RequestStatus{Request: req}
	if req.TransferID != nil {
		transfer, err := s.repo.FindTransferRecordByID(ctx, *req.TransferID)
		if err != nil {
			return nil, err
		}
		status.Transfer = transfer
	}
	return status, nil
}

// GetTransfer returns one immutable transfer record.
func (s *Service) GetTransfer(ctx context.Context, transferID uuid.UUID) (*domain.TransferRecord, error) {
	return s.repo.FindTransferRecordByID(ctx, transferID)
}

// CreateAccount provisions a new account.
func (s *Service) CreateAccount(ctx context.Context, payload domain.CreateAccountPayload) (*domain.Account, error) {
	if strings.TrimSpace(payload.Email) == "" || !strings.Contains(payload.Email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "a valid email address is required"}
	}
	if payload.InitialBalance != nil {
		if payload.InitialBalance.IsNegative() {
			return nil, &ValidationError{Field: "initial_balance", Reason: "must not be negative"}
		}
		if payload.InitialBalance.Exponent() < -2 {
			return nil, &ValidationError{Field: "initial_balance", Reason: "at most two decimal places"}
		}
	}
	return s.repo.CreateAccount(ctx, payload)
}

func validateSubmitPayload(payload domain.SubmitRequestPayload) error {
	if payload.AccountID == uuid.Nil {
		return &ValidationError{Field: "account_id", Reason: "is required"}
	}
	if payload.Mode != domain.ModeSend && payload.Mode != domain.ModeReceive {
		return &ValidationError{Field: "mode", Reason: "must be 'send' or 'receive'"}
	}
	if !payload.Amount.GreaterThan(decimal.Zero) {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if payload.Amount.Exponent() < -2 {
		return &ValidationError{Field: "amount", Reason: "at most two decimal places"}
	}
	if strings.TrimSpace(payload.SecretCode) == "" {
		return &ValidationError{Field: "secret_code", Reason: "is required"}
	}
	if strings.TrimSpace(payload.Nonce) == "" {
		return &ValidationError{Field: "nonce", Reason: "is required"}
	}
	return nil
}
