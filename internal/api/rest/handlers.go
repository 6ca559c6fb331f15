package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stayloop/stayloop-backend/internal/domain/errors"
	"github.com/stayloop/stayloop-backend/internal/domain/security"
	"github.com/stayloop/stayloop-backend/internal/domain/values"
	"github.com/stayloop/stayloop-backend/internal/metrics"
	"github.com/stayloop/stayloop-backend/internal/service/fraud"
	securitysvc "github.com/stayloop/stayloop-backend/internal/service/security"
)

// Handler serves the risk core API
type Handler struct {
	fraud    fraud.Service
	security securitysvc.Service
	metrics  *metrics.Registry
	validate *validator.Validate
}

// NewHandler creates the API handler. The registry may be nil in tests.
func NewHandler(fraudSvc fraud.Service, securitySvc securitysvc.Service, reg *metrics.Registry) *Handler {
	return &Handler{
		fraud:    fraudSvc,
		security: securitySvc,
		metrics:  reg,
		validate: validator.New(),
	}
}

// FraudCheckRequest is the payload for POST /api/v1/fraud/check
type FraudCheckRequest struct {
	TransactionID string `json:"transaction_id" validate:"omitempty,uuid"`
	ActorID       string `json:"actor_id" validate:"required,uuid"`
	CounterpartID string `json:"counterpart_id" validate:"omitempty,uuid"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
	InstrumentID  string `json:"instrument_id" validate:"required,uuid"`
	BillingRegion string `json:"billing_region" validate:"omitempty,len=2"`
}

// FraudCheck runs the scorer on a transaction attempt
func (h *Handler) FraudCheck(w http.ResponseWriter, r *http.Request) {
	var req FraudCheckRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := values.NewMoneyFromString(req.Amount, req.Currency)
	if err != nil {
		writeError(w, errors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	txn := &fraud.TransactionContext{
		TransactionID: parseOrNewUUID(req.TransactionID),
		ActorID:       uuid.MustParse(req.ActorID),
		Amount:        amount,
		InstrumentID:  uuid.MustParse(req.InstrumentID),
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
		BillingRegion: req.BillingRegion,
		Timestamp:     time.Now().UTC(),
	}
	if req.CounterpartID != "" {
		id := uuid.MustParse(req.CounterpartID)
		txn.CounterpartID = &id
	}

	start := time.Now()
	result := h.fraud.AnalyzeTransaction(r.Context(), txn)
	if h.metrics != nil {
		fallback := false
		for _, flag := range result.Flags {
			if flag == fraud.FlagDetectionError {
				fallback = true
				break
			}
		}
		h.metrics.RecordFraudCheck(r.Context(), float64(time.Since(start).Milliseconds()),
			result.RiskScore, string(result.RiskLevel), result.Blocked, fallback)
	}
	writeJSON(w, http.StatusOK, result)
}

// FeedbackRequest is the payload for POST /api/v1/fraud/feedback
type FeedbackRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
	Kind          string `json:"kind" validate:"required,oneof=false_positive confirmed_fraud"`
	FraudType     string `json:"fraud_type" validate:"required_if=Kind confirmed_fraud"`
	Note          string `json:"note"`
}

// Feedback records a false-positive or confirmed-fraud annotation
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	transactionID := uuid.MustParse(req.TransactionID)

	var err error
	switch fraud.FeedbackKind(req.Kind) {
	case fraud.FeedbackFalsePositive:
		err = h.fraud.ReportFalsePositive(r.Context(), transactionID, req.Note)
	case fraud.FeedbackConfirmedFraud:
		err = h.fraud.ReportConfirmedFraud(r.Context(), transactionID, req.FraudType, req.Note)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// SecurityEventRequest is the payload for POST /api/v1/security/events
type SecurityEventRequest struct {
	ActorID   string                 `json:"actor_id" validate:"omitempty,uuid"`
	EventType string                 `json:"event_type" validate:"required"`
	Severity  string                 `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// SecurityEvent appends an event and runs the threat monitor
func (h *Handler) SecurityEvent(w http.ResponseWriter, r *http.Request) {
	var req SecurityEventRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	event := security.NewEvent(req.EventType, security.Severity(req.Severity), security.EventDetails{
		Metadata: req.Metadata,
	}).WithOrigin(clientIP(r), r.UserAgent())
	if req.ActorID != "" {
		event.WithActor(uuid.MustParse(req.ActorID))
	}

	if err := h.security.LogEvent(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSecurityEvent(r.Context(), event.EventType, string(event.Severity))
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID.String()})
}

// BlockedIP reports whether an IP currently has an active block
func (h *Handler) BlockedIP(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		writeError(w, errors.NewValidationError("MISSING_IP", "ip path parameter is required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ip_address": ip,
		"blocked":    h.security.IsIPBlocked(r.Context(), ip),
	})
}

// Health is the liveness endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.NewValidationError("INVALID_JSON", "request body is not valid JSON")
	}
	if err := h.validate.Struct(dest); err != nil {
		return errors.NewValidationError("INVALID_REQUEST", err.Error())
	}
	return nil
}

func parseOrNewUUID(s string) uuid.UUID {
	if s == "" {
		return uuid.New()
	}
	return uuid.MustParse(s)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := errors.GetStatusCode(err)

	var payload interface{}
	if appErr, ok := errors.AsAppError(err); ok {
		payload = map[string]interface{}{"error": appErr}
	} else {
		payload = map[string]interface{}{
			"error": map[string]string{
				"code":    "INTERNAL_ERROR",
				"message": "An internal error occurred",
			},
		}
	}

	writeJSON(w, status, payload)
}
