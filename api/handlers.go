/*
handlers.go - HTTP handlers for the booking API

PURPOSE:
  Translates HTTP requests into engine and query calls and domain errors
  into status codes. No business logic lives here.

ERROR MAPPING:
  409 Conflict            - duplicate booking, already verified
  400 Bad Request         - other business-rule violations, bad input
  404 Not Found           - unknown student or booking
  503 Service Unavailable - retryable storage conflicts
  500 Internal            - everything else

SEE ALSO:
  - dto.go:    Request/response shapes
  - server.go: Routing and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/mess-engine/mess"
)

// maxBodyBytes caps request bodies. The largest legitimate payload is a
// student record; anything near the cap is abuse.
const maxBodyBytes = 64 * 1024

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	engine    *mess.Engine
	queries   *mess.Queries
	store     mess.Store
	allotment mess.Ledger
	validate  *validator.Validate
	log       zerolog.Logger
}

// NewHandler creates the handler set.
func NewHandler(engine *mess.Engine, queries *mess.Queries, store mess.Store, allotment mess.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		queries:   queries,
		store:     store,
		allotment: allotment,
		validate:  validator.New(),
		log:       log,
	}
}

// =============================================================================
// STUDENT ENDPOINTS
// =============================================================================

// handleReserve books meal slots for the authenticated student.
// POST /api/student/bookings
func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}

	date := mess.Tomorrow()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		date = parsed
	}

	slots := make([]mess.MealSlot, len(req.Slots))
	for i, s := range req.Slots {
		slot, err := mess.ParseSlot(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot", err.Error())
			return
		}
		slots[i] = slot
	}

	booking, ledger, err := h.engine.Reserve(r.Context(), identity, date, mess.NewSlotSet(slots...))
	if err != nil {
		reservationFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		h.writeDomainError(w, err)
		return
	}

	reservationsTotal.Inc()
	writeJSON(w, http.StatusCreated, ReserveResponse{
		Booking:         toBookingDTO(booking),
		RemainingTokens: ledger,
	})
}

// handleLedger returns the authenticated student's remaining tokens.
// GET /api/student/ledger
func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.queries.LedgerOf(r.Context(), identityFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Tokens: ledger})
}

// handleHistory returns the authenticated student's recent bookings.
// GET /api/student/bookings?limit=N
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	bookings, err := h.queries.HistoryOf(r.Context(), identityFrom(r.Context()), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]BookingDTO, len(bookings))
	for i := range bookings {
		dtos[i] = toBookingDTO(&bookings[i])
	}
	writeJSON(w, http.StatusOK, map[string][]BookingDTO{"bookings": dtos})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// handleMealList returns booked-but-unverified students for a day and slot.
// GET /api/admin/meal-list?day=today|tomorrow&slot=lunch
func (h *Handler) handleMealList(w http.ResponseWriter, r *http.Request) {
	slot, err := mess.ParseSlot(r.URL.Query().Get("slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot", err.Error())
		return
	}

	date := mess.Today()
	switch day := r.URL.Query().Get("day"); day {
	case "", "today":
	case "tomorrow":
		date = mess.Tomorrow()
	default:
		writeError(w, http.StatusBadRequest, "invalid day", "day must be today or tomorrow")
		return
	}

	entries, err := h.queries.ListUnverified(r.Context(), date, slot)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	students := make([]MealListEntryDTO, len(entries))
	for i, e := range entries {
		students[i] = MealListEntryDTO{
			BookingID: e.BookingID,
			RollNo:    e.RollNo,
			Name:      e.Name,
			MessName:  e.MessName,
		}
	}
	writeJSON(w, http.StatusOK, MealListResponse{
		Slot:     string(slot),
		Date:     date.Format("2006-01-02"),
		Count:    len(students),
		Students: students,
	})
}

// handleVerify marks a booked slot as collected.
// PUT /api/admin/verify
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	booking, err := h.engine.Verify(r.Context(), req.BookingID, mess.MealSlot(req.Slot))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	verificationsTotal.Inc()
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

// handleReset restores every ledger to the configured allotment, on demand.
// POST /api/admin/reset
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	updated, err := h.engine.ResetAll(r.Context(), h.allotment)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resetRunsTotal.Inc()
	resetStudentsTotal.Add(float64(updated))
	writeJSON(w, http.StatusOK, ResetResponse{StudentsUpdated: updated})
}

// handleCreateStudent registers a new ledger owner with a full allotment.
// POST /api/admin/students
func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	role := mess.RoleStudent
	if req.Role != "" {
		role = mess.Role(req.Role)
	}

	student := mess.Student{
		ID:        uuid.NewString(),
		RollNo:    req.RollNo,
		Name:      req.Name,
		MessName:  req.MessName,
		Role:      role,
		Ledger:    h.allotment,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveStudent(r.Context(), student); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.Info().
		Str("student_id", student.ID).
		Str("roll_no", student.RollNo).
		Msg("student registered")
	writeJSON(w, http.StatusCreated, toStudentDTO(&student))
}

// handleListStudents lists all students ordered by roll number.
// GET /api/admin/students
func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i := range students {
		dtos[i] = toStudentDTO(&students[i])
	}
	writeJSON(w, http.StatusOK, map[string][]StudentDTO{"students": dtos})
}

// =============================================================================
// HEALTH
// =============================================================================

// handleHealth is the liveness probe.
// GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads, parses, and validates a JSON request body. Writes the error
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err.Error())
		return false
	}
	return true
}

// writeDomainError maps a domain error onto an HTTP response.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *mess.InsufficientTokensError
	if errors.As(err, &insufficient) {
		slots := make([]string, len(insufficient.Slots))
		for i, slot := range insufficient.Slots {
			slots[i] = string(slot)
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:             "insufficient tokens",
			Details:           err.Error(),
			InsufficientSlots: slots,
		})
		return
	}

	switch {
	case errors.Is(err, mess.ErrDuplicateBooking), errors.Is(err, mess.ErrAlreadyVerified),
		errors.Is(err, mess.ErrDuplicateRollNo):
		writeError(w, http.StatusConflict, err.Error(), "")
	case mess.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case mess.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case mess.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:     err.Error(),
			Retryable: true,
		})
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
