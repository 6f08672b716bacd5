/**
 * @description
 * This file defines the core domain models for the pairing-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Monetary values are `decimal.Decimal` backed by PostgreSQL NUMERIC(18,2),
 *   which keeps debit and credit amounts exact with no floating-point drift.
 * - An offline request's status only ever moves forward: pending -> paired or
 *   pending -> failed. Nothing in the service reverses a terminal status.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request modes. A send request pairs with a receive request and vice versa.
const (
	ModeSend    = "send"
	ModeReceive = "receive"
)

// Offline request statuses.
const (
	StatusPending = "pending"
	StatusPaired  = "paired"
	StatusFailed  = "failed"
)

// Submission outcomes reported to the caller alongside the stored request.
const (
	// OutcomeUnmatched means the request was recorded but no counterpart
	// exists yet; it stays pending until one arrives.
	OutcomeUnmatched = "unmatched"
	// OutcomePaired means a counterpart was claimed and the transfer committed.
	OutcomePaired = "paired"
	// OutcomeInsufficientFunds means a counterpart was claimed but the sender
	// could not cover the amount; both requests are failed. This is a committed
	// domain outcome, not an infrastructure error.
	OutcomeInsufficientFunds = "insufficient_funds"
	// OutcomeExisting means the identical (fingerprint, nonce, payload) was
	// already recorded; the stored request is returned as-is.
	OutcomeExisting = "existing"
)

// Account represents a wallet holder. Accounts are provisioned externally and
// their balance is only ever mutated inside the pairing transaction.
type Account struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email"`
	DisplayName *string         `json:"display_name,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OfflineRequest is one half of an offline payment: a send or receive intent
// recorded by a device that never talked to its counterpart directly.
// This struct maps directly to the `offline_requests` table.
type OfflineRequest struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	Mode              string          `json:"mode"`
	Amount            decimal.Decimal `json:"amount"`
	SecretFingerprint string          `json:"-"`
	Nonce             string          `json:"nonce"`
	LocalRef          *string         `json:"local_ref,omitempty"`
	Status            string          `json:"status"`
	TransferID        *uuid.UUID      `json:"transfer_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransferDetails is the fixed structured payload captured on every transfer
// record: the two device-local references plus the fingerprint that paired them.
type TransferDetails struct {
	SenderLocalRef    string `json:"sender_local_ref"`
	ReceiverLocalRef  string `json:"receiver_local_ref"`
	SecretFingerprint string `json:"secret_fingerprint"`
}

// TransferRecord is the immutable ledger entry for one executed pairing.
// Exactly two offline requests (the send and the receive) reference it.
type TransferRecord struct {
	ID         uuid.UUID       `json:"id"`
	SenderID   uuid.UUID       `json:"sender_id"`
	ReceiverID uuid.UUID       `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Details    TransferDetails `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SubmitRequestPayload is the DTO for an incoming offline request submission.
type SubmitRequestPayload struct {
	AccountID  uuid.UUID       `json:"account_id"`
	Mode       string          `json:"mode"`
	Amount     decimal.Decimal `json:"amount"`
	SecretCode string          `json:"secret_code"`
	Nonce      string          `json:"nonce"`
	LocalRef   *string         `json:"local_ref,omitempty"`
}

// NotificationParty identifies one side of a settled transfer for the
// post-commit notifier.
type NotificationParty struct {
	AccountID uuid.UUID
	Email     string
}

// SubmitOutcome is the result of a submission after the pairing transaction
// has committed (or, for OutcomeExisting, after the idempotent short-circuit).
type SubmitOutcome struct {
	Request  *OfflineRequest
	Outcome  string
	Transfer *TransferRecord
	Sender   *NotificationParty
	Receiver *NotificationParty
}

// RequestStatus is the read-only projection returned by status polling.
type RequestStatus struct {
	Request  *OfflineRequest `json:"request"`
	Transfer *TransferRecord `json:"transfer,omitempty"`
}

// CreateAccountPayload is the DTO for provisioning a new account.
type CreateAccountPayload struct {
	Email          string           `json:"email"`
	DisplayName    *string          `json:"display_name,omitempty"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
}
