/**
 * @description
 * This file implements the pairing transaction: the single atomic span that
 * ingests an offline request, claims a complementary pending request under a
 * skip-locked scan, verifies and moves balances, writes the immutable transfer
 * record, and flips both requests to their terminal status. Every step runs on
 * one pgx transaction; any failure before commit leaves the database exactly
 * as it was when the attempt began.
 *
 * Concurrency notes:
 * - The counterpart scan uses FOR UPDATE SKIP LOCKED, so two matchers racing
 *   on the same fingerprint see disjoint candidates and never block each other.
 * - Account rows are always locked in ascending-id order regardless of which
 *   side is the sender, which rules out lock-ordering deadlocks between
 *   pairings that share an account.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: Transactions, row locking, unique-violation codes.
 * - internal/domain: Domain models.
 */

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/offpay/pairing-service/internal/domain"
)

// SubmitOfflineRequest records the request and attempts to pair and settle it,
// all inside one database transaction. The returned outcome reflects committed
// state: unmatched (request stays pending), paired (transfer executed), or
// insufficient_funds (both requests failed, balances untouched). An identical
// replay of an already-recorded request short-circuits with OutcomeExisting;
// a (fingerprint, nonce) reuse with a differing body returns ErrDuplicateRequest.
func (r *PostgresRepository) SubmitOfflineRequest(ctx context.Context, params SubmitParams) (*domain.SubmitOutcome, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Ingest. ON CONFLICT DO NOTHING keeps the transaction valid when the
	// (fingerprint, nonce) pair has already been consumed.
	req, err := insertOfflineRequest(ctx, tx, params)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("request insert failed: %w", err)
	}
	if req == nil {
		existing, err := findRequestByFingerprintNonce(ctx, tx, params.SecretFingerprint, params.Nonce)
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup failed: %w", err)
		}
		if !payloadMatches(existing, params) {
			return nil, ErrDuplicateRequest
		}
		// Idempotent replay: nothing was written, return the stored row.
		return &domain.SubmitOutcome{Request: existing, Outcome: domain.OutcomeExisting}, nil
	}

	// 2. Match. Claims the oldest unclaimed complementary pending request,
	// skipping rows already locked by a concurrent pairing.
	match, err := claimCounterpart(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("counterpart scan failed: %w", err)
	}
	if match == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("tx commit failed: %w", err)
		}
		return &domain.SubmitOutcome{Request: req, Outcome: domain.OutcomeUnmatched}, nil
	}

	// 3. Ledger. Locks held from step 2 are kept until commit.
	senderReq, receiverReq := assignRoles(req, match)
	sender, receiver, err := r.lockAccountPair(ctx, tx, senderReq.AccountID, receiverReq.AccountID)
	if err != nil {
		return nil, err
	}

	amount := senderReq.Amount
	if sender.Balance.LessThan(amount) {
		// A normal, committed outcome: both requests become failed, balances
		// stay untouched, and unrelated in-flight pairings are unaffected.
		if err := markRequestsFailed(ctx, tx, senderReq.ID, receiverReq.ID); err != nil {
			return nil, fmt.Errorf("failed-status update failed: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("tx commit failed: %w", err)
		}
		req.Status = domain.StatusFailed
		return &domain.SubmitOutcome{
			Request:  req,
			Outcome:  domain.OutcomeInsufficientFunds,
			Sender:   &domain.NotificationParty{AccountID: sender.ID, Email: sender.Email},
			Receiver: &domain.NotificationParty{AccountID: receiver.ID, Email: receiver.Email},
		}, nil
	}

	// Relative updates, so a self-pairing (same account on both sides) nets
	// to exactly zero instead of the credit clobbering the debit.
	if err := adjustAccountBalance(ctx, tx, sender.ID, amount.Neg()); err != nil {
		return nil, fmt.Errorf("debit failed: %w", err)
	}
	if err := adjustAccountBalance(ctx, tx, receiver.ID, amount); err != nil {
		return nil, fmt.Errorf("credit failed: %w", err)
	}

	record, err := insertTransferRecord(ctx, tx, sender.ID, receiver.ID, amount, domain.TransferDetails{
		SenderLocalRef:    derefLocalRef(senderReq.LocalRef),
		ReceiverLocalRef:  derefLocalRef(receiverReq.LocalRef),
		SecretFingerprint: req.SecretFingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer record insert failed: %w", err)
	}

	// 4. Reconcile. Both requests flip to paired and link to the record.
	if err := linkRequestsPaired(ctx, tx, record.ID, senderReq.ID, receiverReq.ID); err != nil {
		return nil, fmt.Errorf("paired-status update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	req.Status = domain.StatusPaired
	req.TransferID = &record.ID
	return &domain.SubmitOutcome{
		Request:  req,
		Outcome:  domain.OutcomePaired,
		Transfer: record,
		Sender:   &domain.NotificationParty{AccountID: sender.ID, Email: sender.Email},
		Receiver: &domain.NotificationParty{AccountID: receiver.ID, Email: receiver.Email},
	}, nil
}

func insertOfflineRequest(ctx context.Context, tx pgx.Tx, params SubmitParams) (*domain.OfflineRequest, error) {
	var req domain.OfflineRequest
	query := `
		INSERT INTO offline_requests (id, account_id, mode, amount, secret_fingerprint, nonce, local_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		ON CONFLICT (secret_fingerprint, nonce) DO NOTHING
		RETURNING id, account_id, mode, amount, secret_fingerprint, nonce, local_ref, status, transfer_id, created_at
	`
	err := tx.QueryRow(ctx, query,
		uuid.New(),
		params.AccountID,
		params.Mode,
		params.Amount,
		params.SecretFingerprint,
		params.Nonce,
		params.LocalRef,
	).Scan(
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
			// Conflict: the (fingerprint, nonce) pair already exists.
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func findRequestByFingerprintNonce(ctx context.Context, tx pgx.Tx, fingerprint, nonce string) (*domain.OfflineRequest, error) {
	var req domain.OfflineRequest
	query := `
		SELECT id, account_id, mode, amount, secret_fingerprint, nonce, local_ref, status, transfer_id, created_at
		FROM offline_requests
		WHERE secret_fingerprint = $1 AND nonce = $2
	`
	err := tx.QueryRow(ctx, query, fingerprint, nonce).Scan(
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

// claimCounterpart scans pending requests with the same fingerprint and amount
// but the opposite mode, oldest first, and locks the first row not already
// claimed by a concurrent pairing. Strict FIFO: a later-arriving counterpart
// never jumps ahead of an earlier one.
func claimCounterpart(ctx context.Context, tx pgx.Tx, req *domain.OfflineRequest) (*domain.OfflineRequest, error) {
	var match domain.OfflineRequest
	query := `
		SELECT id, account_id, mode, amount, secret_fingerprint, nonce, local_ref, status, transfer_id, created_at
		FROM offline_requests
		WHERE secret_fingerprint = $1
		  AND mode = $2
		  AND status = 'pending'
		  AND amount = $3
		  AND id <> $4
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	err := tx.QueryRow(ctx, query, req.SecretFingerprint, counterpartMode(req.Mode), req.Amount, req.ID).Scan(
		&match.ID,
		&match.AccountID,
		&match.Mode,
		&match.Amount,
		&match.SecretFingerprint,
		&match.Nonce,
		&match.LocalRef,
		&match.Status,
		&match.TransferID,
		&match.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &match, nil
}

// lockAccountPair locks both account rows FOR UPDATE in ascending-id order,
// independent of sender/receiver role, and returns them mapped back to that
// role. When both requests belong to the same account the row is locked once.
func (r *PostgresRepository) lockAccountPair(ctx context.Context, tx pgx.Tx, senderID, receiverID uuid.UUID) (sender, receiver *domain.Account, err error) {
	first, second := accountLockOrder(senderID, receiverID)

	firstAcct, err := lockAccount(ctx, tx, first)
	if err != nil {
		return nil, nil, err
	}
	secondAcct := firstAcct
	if second != first {
		secondAcct, err = lockAccount(ctx, tx, second)
		if err != nil {
			return nil, nil, err
		}
	}

	if firstAcct.ID == senderID {
		return firstAcct, secondAcct, nil
	}
	return secondAcct, firstAcct, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, email, display_name, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`
	err := tx.QueryRow(ctx, query, accountID).Scan(
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
		return nil, fmt.Errorf("account lock failed: %w", err)
	}
	return &account, nil
}

func adjustAccountBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, delta, accountID)
	return err
}

func insertTransferRecord(ctx context.Context, tx pgx.Tx, senderID, receiverID uuid.UUID, amount decimal.Decimal, details domain.TransferDetails) (*domain.TransferRecord, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	record := domain.TransferRecord{Details: details}
	query := `
		INSERT INTO transfer_records (id, sender_id, receiver_id, amount, status, details)
		VALUES ($1, $2, $3, $4, 'completed', $5::jsonb)
		RETURNING id, sender_id, receiver_id, amount, status, created_at
	`
	err = tx.QueryRow(ctx, query, uuid.New(), senderID, receiverID, amount, string(detailsJSON)).Scan(
		&record.ID,
		&record.SenderID,
		&record.ReceiverID,
		&record.Amount,
		&record.Status,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func linkRequestsPaired(ctx context.Context, tx pgx.Tx, transferID uuid.UUID, requestIDs ...uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE offline_requests SET status = 'paired', transfer_id = $1 WHERE id = ANY($2)`,
		transferID, requestIDs,
	)
	return err
}

func markRequestsFailed(ctx context.Context, tx pgx.Tx, requestIDs ...uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE offline_requests SET status = 'failed' WHERE id = ANY($1)`,
		requestIDs,
	)
	return err
}

// payloadMatches reports whether a stored request and a new submission carry
// the same body, which is what distinguishes an idempotent retry from a
// replayed proof with different contents.
func payloadMatches(existing *domain.OfflineRequest, params SubmitParams) bool {
	if existing == nil {
		return false
	}
	if existing.AccountID != params.AccountID || existing.Mode != params.Mode {
		return false
	}
	if !existing.Amount.Equal(params.Amount) {
		return false
	}
	return derefLocalRef(existing.LocalRef) == derefLocalRef(params.LocalRef)
}

func counterpartMode(mode string) string {
	if mode == domain.ModeSend {
		return domain.ModeReceive
	}
	return domain.ModeSend
}

// assignRoles decides which request debits and which credits: the send side
// is always the sender no matter which of the two arrived last.
func assignRoles(newReq, match *domain.OfflineRequest) (senderReq, receiverReq *domain.OfflineRequest) {
	if newReq.Mode == domain.ModeSend {
		return newReq, match
	}
	return match, newReq
}

// accountLockOrder returns the two account ids in the canonical service-wide
// locking order (ascending by id bytes).
func accountLockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// isForeignKeyViolation reports whether err is a Postgres 23503 error. On the
// ingest insert this means the submitting account does not exist.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func derefLocalRef(ref *string) string {
	if ref == nil {
		return ""
	}
	return *ref
}
