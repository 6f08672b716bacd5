/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the pairing-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For exact monetary amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offpay/pairing-service/internal/domain"
)

// SubmitParams carries one validated offline request into the pairing
// transaction. The secret code has already been reduced to its fingerprint;
// the raw code never reaches this layer.
type SubmitParams struct {
	AccountID         uuid.UUID
	Mode              string
	Amount            decimal.Decimal
	SecretFingerprint string
	Nonce             string
	LocalRef          *string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, payload domain.CreateAccountPayload) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)

	// SubmitOfflineRequest records one offline request and, inside the same
	// database transaction, attempts to pair it and settle the transfer.
	// The returned outcome always reflects committed state.
	SubmitOfflineRequest(ctx context.Context, params SubmitParams) (*domain.SubmitOutcome, error)

	// Read-only projections
	FindOfflineRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.OfflineRequest, error)
	FindTransferRecordByID(ctx context.Context, transferID uuid.UUID) (*domain.TransferRecord, error)
}
