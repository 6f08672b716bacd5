/**
 * @description
 * This file contains the HTTP handlers for the pairing-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Error mapping follows the service taxonomy: validation problems are 400,
 * nonce reuse with a differing body is 409, rate limiting is 429, and anything
 * infrastructural is a 500 the caller may safely retry. An insufficient-funds
 * pairing is a committed domain outcome and is reported in the response body,
 * not as an HTTP error.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - github.com/prometheus/client_golang: Submission outcome metrics.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/offpay/pairing-service/internal/app"
	"github.com/offpay/pairing-service/internal/domain"
	"github.com/offpay/pairing-service/internal/store"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairing_submissions_total",
		Help: "Total offline request submissions, labeled by committed outcome",
	}, []string{"outcome"})

	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pairing_submission_duration_seconds",
		Help:    "Latency distribution of offline request submissions",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"mode"})
)

// PairingHandlers holds the application service that handlers will use.
type PairingHandlers struct {
	service *app.Service
}

// NewPairingHandlers creates a new instance of PairingHandlers.
func NewPairingHandlers(service *app.Service) *PairingHandlers {
	return &PairingHandlers{service: service}
}

// submitResponse is returned to the device after a submission. The outcome is
// committed state: the device can act on it without polling first.
type submitResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Outcome    string  `json:"outcome"`
	TransferID *string `json:"transfer_id,omitempty"`
}

// SubmitRequestHandler handles offline payment request submissions.
func (h *PairingHandlers) SubmitRequestHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.SubmitRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("level=warn component=api endpoint=submit_request outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	timer := prometheus.NewTimer(submissionDuration.WithLabelValues(modeLabel(payload.Mode)))
	outcome, err := h.service.SubmitRequest(r.Context(), payload)
	timer.ObserveDuration()

	if err != nil {
		var validationErr *app.ValidationError
		var rateLimitErr *app.RateLimitError
		switch {
		case errors.As(err, &validationErr):
			submissionsTotal.WithLabelValues("validation_error").Inc()
			h.writeError(w, http.StatusBadRequest, validationErr.Error())
		case errors.As(err, &rateLimitErr):
			submissionsTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "Too many submissions, slow down")
		case errors.Is(err, store.ErrDuplicateRequest):
			submissionsTotal.WithLabelValues("duplicate").Inc()
			h.writeError(w, http.StatusConflict, "Nonce already used with a different request")
		case errors.Is(err, store.ErrAccountNotFound):
			submissionsTotal.WithLabelValues("account_not_found").Inc()
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			// Infrastructure failure: the pairing transaction was rolled back
			// and the submission is safe to retry.
			submissionsTotal.WithLabelValues("infrastructure_error").Inc()
			log.Printf("level=error component=api endpoint=submit_request outcome=error err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Temporary failure, please retry")
		}
		return
	}

	submissionsTotal.WithLabelValues(outcome.Outcome).Inc()

	response := submitResponse{
		ID:      outcome.Request.ID.String(),
		Status:  outcome.Request.Status,
		Outcome: outcome.Outcome,
	}
	if outcome.Request.TransferID != nil {
		transferID := outcome.Request.TransferID.String()
		response.TransferID = &transferID
	}

	status := http.StatusCreated
	if outcome.Outcome == domain.OutcomeExisting {
		status = http.StatusOK
	}
	h.writeJSON(w, status, response)
}

// GetRequestStatusHandler returns the current status of one offline request
// and, when it has settled, the linked transfer record.
func (h *PairingHandlers) GetRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	status, err := h.service.GetRequestStatus(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			h.writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_request_status err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Temporary failure, please retry")
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// GetTransferHandler returns one immutable transfer record.
func (h *PairingHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transfer err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Temporary failure, please retry")
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// CreateAccountHandler provisions a new account.
func (h *PairingHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.CreateAccountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), payload)
	if err != nil {
		var validationErr *app.ValidationError
		if errors.As(err, &validationErr) {
			h.writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		log.Printf("level=error component=api endpoint=create_account err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Temporary failure, please retry")
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// modeLabel keeps the histogram label set bounded; anything the validator
// would reject is bucketed as invalid.
func modeLabel(mode string) string {
	if mode == domain.ModeSend || mode == domain.ModeReceive {
		return mode
	}
	return "invalid"
}

// writeJSON is a helper for writing JSON responses.
func (h *PairingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PairingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
