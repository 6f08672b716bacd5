package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offpay/pairing-service/internal/app"
	"github.com/offpay/pairing-service/internal/domain"
	"github.com/offpay/pairing-service/internal/store"
)

const testAPIKey = "internal-test-key"

// mockRepository implements store.Repository with canned responses.
type mockRepository struct {
	submitOutcome *domain.SubmitOutcome
	submitErr     error

	request  *domain.OfflineRequest
	transfer *domain.TransferRecord
}

func (m *mockRepository) CreateAccount(ctx context.Context, payload domain.CreateAccountPayload) (*domain.Account, error) {
	return &domain.Account{ID: uuid.New(), Email: payload.Email}, nil
}

func (m *mockRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return nil, store.ErrAccountNotFound
}

func (m *mockRepository) SubmitOfflineRequest(ctx context.Context, params store.SubmitParams) (*domain.SubmitOutcome, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitOutcome, nil
}

func (m *mockRepository) FindOfflineRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.OfflineRequest, error) {
	if m.request == nil {
		return nil, store.ErrRequestNotFound
	}
	return m.request, nil
}

func (m *mockRepository) FindTransferRecordByID(ctx context.Context, transferID uuid.UUID) (*domain.TransferRecord, error) {
	if m.transfer == nil {
		return nil, store.ErrTransferNotFound
	}
	return m.transfer, nil
}

func newTestRouter(repo *mockRepository) http.Handler {
	service := app.NewService(repo, app.NewFingerprinter("test-key"), app.NewNotifier(nil, "offpay.events"))
	return PairingRoutes(NewPairingHandlers(service), testAPIKey)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submitBody(accountID uuid.UUID) string {
	return fmt.Sprintf(`{"account_id":%q,"mode":"send","amount":"25.00","secret_code":"482913","nonce":"nonce-1"}`, accountID)
}

func TestInternalAuthMiddleware(t *testing.T) {
	router := newTestRouter(&mockRepository{})

	t.Run("missing key is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong key is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader("{}"))
		req.Header.Set(internalAPIKeyHeader, "wrong-key")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("health endpoint needs no key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestSubmitRequestHandlerStatusMapping(t *testing.T) {
	accountID := uuid.New()
	transferID := uuid.New()

	tests := []struct {
		name       string
		repo       *mockRepository
		body       string
		wantStatus int
	}{
		{
			name: "unmatched submission is created",
			repo: &mockRepository{
				submitOutcome: &domain.SubmitOutcome{
					Request: &domain.OfflineRequest{ID: uuid.New(), Status: domain.StatusPending},
					Outcome: domain.OutcomeUnmatched,
				},
			},
			body:       submitBody(accountID),
			wantStatus: http.StatusCreated,
		},
		{
			name: "paired submission is created with transfer id",
			repo: &mockRepository{
				submitOutcome: &domain.SubmitOutcome{
					Request:  &domain.OfflineRequest{ID: uuid.New(), Status: domain.StatusPaired, TransferID: &transferID},
					Outcome:  domain.OutcomePaired,
					Transfer: &domain.TransferRecord{ID: transferID, Amount: decimal.RequireFromString("25.00")},
				},
			},
			body:       submitBody(accountID),
			wantStatus: http.StatusCreated,
		},
		{
			name: "insufficient funds is still a committed outcome",
			repo: &mockRepository{
				submitOutcome: &domain.SubmitOutcome{
					Request: &domain.OfflineRequest{ID: uuid.New(), Status: domain.StatusFailed},
					Outcome: domain.OutcomeInsufficientFunds,
				},
			},
			body:       submitBody(accountID),
			wantStatus: http.StatusCreated,
		},
		{
			name: "idempotent replay returns ok",
			repo: &mockRepository{
				submitOutcome: &domain.SubmitOutcome{
					Request: &domain.OfflineRequest{ID: uuid.New(), Status: domain.StatusPending},
					Outcome: domain.OutcomeExisting,
				},
			},
			body:       submitBody(accountID),
			wantStatus: http.StatusOK,
		},
		{
			name:       "validation failure is bad request",
			repo:       &mockRepository{},
			body:       fmt.Sprintf(`{"account_id":%q,"mode":"teleport","amount":"25.00","secret_code":"482913","nonce":"n"}`, accountID),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json is bad request",
			repo:       &mockRepository{},
			body:       `{"account_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nonce reuse with different body is conflict",
			repo:       &mockRepository{submitErr: store.ErrDuplicateRequest},
			body:       submitBody(accountID),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown account is not found",
			repo:       &mockRepository{submitErr: store.ErrAccountNotFound},
			body:       submitBody(accountID),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "infrastructure failure is retryable server error",
			repo:       &mockRepository{submitErr: fmt.Errorf("tx begin failed: connection refused")},
			body:       submitBody(accountID),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.repo)
			rec := doRequest(t, router, http.MethodPost, "/requests", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d (body: %s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitRequestHandlerResponseBody(t *testing.T) {
	accountID := uuid.New()
	transferID := uuid.New()
	requestID := uuid.New()

	router := newTestRouter(&mockRepository{
		submitOutcome: &domain.SubmitOutcome{
			Request:  &domain.OfflineRequest{ID: requestID, Status: domain.StatusPaired, TransferID: &transferID},
			Outcome:  domain.OutcomePaired,
			Transfer: &domain.TransferRecord{ID: transferID, Amount: decimal.RequireFromString("25.00")},
		},
	})

	rec := doRequest(t, router, http.MethodPost, "/requests", submitBody(accountID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var response struct {
		ID         string  `json:"id"`
		Status     string  `json:"status"`
		Outcome    string  `json:"outcome"`
		TransferID *string `json:"transfer_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID != requestID.String() {
		t.Fatalf("expected request id %s, got %s", requestID, response.ID)
	}
	if response.Outcome != domain.OutcomePaired {
		t.Fatalf("expected paired outcome, got %s", response.Outcome)
	}
	if response.TransferID == nil || *response.TransferID != transferID.String() {
		t.Fatalf("expected transfer id %s in response", transferID)
	}
}

func TestGetRequestStatusHandler(t *testing.T) {
	requestID := uuid.New()

	t.Run("known request returns status", func(t *testing.T) {
		router := newTestRouter(&mockRepository{
			request: &domain.OfflineRequest{ID: requestID, Status: domain.StatusPending},
		})
		rec := doRequest(t, router, http.MethodGet, "/requests/"+requestID.String(), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown request returns not found", func(t *testing.T) {
		router := newTestRouter(&mockRepository{})
		rec := doRequest(t, router, http.MethodGet, "/requests/"+uuid.New().String(), "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("malformed id is bad request", func(t *testing.T) {
		router := newTestRouter(&mockRepository{})
		rec := doRequest(t, router, http.MethodGet, "/requests/not-a-uuid", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetTransferHandler(t *testing.T) {
	transferID := uuid.New()

	t.Run("known transfer returns record", func(t *testing.T) {
		router := newTestRouter(&mockRepository{
			transfer: &domain.TransferRecord{ID: transferID, Status: "completed"},
		})
		rec := doRequest(t, router, http.MethodGet, "/transfers/"+transferID.String(), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown transfer returns not found", func(t *testing.T) {
		router := newTestRouter(&mockRepository{})
		rec := doRequest(t, router, http.MethodGet, "/transfers/"+uuid.New().String(), "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestCreateAccountHandler(t *testing.T) {
	t.Run("valid account is created", func(t *testing.T) {
		router := newTestRouter(&mockRepository{})
		rec := doRequest(t, router, http.MethodPost, "/accounts", `{"email":"alice@example.com"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	})

	t.Run("invalid email is bad request", func(t *testing.T) {
		router := newTestRouter(&mockRepository{})
		rec := doRequest(t, router, http.MethodPost, "/accounts", `{"email":"not-an-email"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
