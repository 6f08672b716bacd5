/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for everything outside the pairing transaction: account provisioning and the
 * read-only projections used for status polling and transfer lookups.
 * The pairing transaction itself lives in postgres_pairing.go.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/offpay/pairing-service/internal/domain"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrRequestNotFound  = errors.New("offline request not found")
	ErrTransferNotFound = errors.New("transfer record not found")
	// ErrDuplicateRequest means the (fingerprint, nonce) pair was already used
	// with a different request body. Replays with an identical body are served
	// idempotently and never produce this error.
	ErrDuplicateRequest = errors.New("duplicate offline request")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account row. Provisioning is normally driven by
// an external onboarding flow; this mirrors that flow for development setups.
func (r *PostgresRepository) CreateAccount(ctx context.Context, payload domain.CreateAccountPayload) (*domain.Account, error) {
	balance := decimal.Zero
	if payload.InitialBalance != nil {
		balance = *payload.InitialBalance
	}

	var account domain.Account
	query := `
		INSERT INTO accounts (id, email, display_name, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, display_name, balance, created_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), payload.Email, payload.DisplayName, balance).Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.Balance,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves a single account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, email, display_name, balance, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.Balance,
		&account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindOfflineRequestByID retrieves one offline request by its ID.
func (r *PostgresRepository) FindOfflineRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.OfflineRequest, error) {
	var req domain.OfflineRequest
	query := `
		SELECT id, account_id, mode, amount, secret_fingerprint, nonce, local_ref, status, transfer_id, created_at
		FROM offline_requests
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&req.ID,
		&req.AccountID,
		&req.Mode,
		&req.Amount,
		&req.SecretFingerprint,
		&req.Nonce,
		&req.LocalRef,
		&req.Status,
		&req.TransferID,
		&req.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindTransferRecordByID retrieves one immutable transfer record.
func (r *PostgresRepository) FindTransferRecordByID(ctx context.Context, transferID uuid.UUID) (*domain.TransferRecord, error) {
	var record domain.TransferRecord
	query := `
		SELECT id, sender_id, receiver_id, amount, status, details, created_at
		FROM transfer_records
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transferID).Scan(
		&record.ID,
		&record.SenderID,
		&record.ReceiverID,
		&record.Amount,
		&record.Status,
		&record.Details,
		&record.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &record, nil
}
