/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes leave.Service over REST. Handles request decoding, validation,
  response serialization and error mapping; all lifecycle rules live in
  the service.

ENDPOINTS:
  Applications:
    POST   /api/applications                  Create (deducts hours)
    GET    /api/applications/{id}             Get
    DELETE /api/applications/{id}             Soft delete
    POST   /api/applications/{id}/restore     Undo soft delete
    POST   /api/applications/{id}/approve     Approve (manager signature)
    POST   /api/applications/{id}/reject      Reject (returns hours)
    POST   /api/applications/{id}/revise      Revise interval / description
    POST   /api/applications/{id}/cancel      Cancel (returns hours)
    GET    /api/applications/{id}/adjustments Adjustment log
    GET    /api/applications/{id}/signatures  Signatures

  Employees:
    GET    /api/employees/{id}/applications   List (?status=, ?include_deleted=true)
    GET    /api/employees/{id}/balances       Pooled balances
    GET    /api/employees/{id}/audit          Replay log vs balances

  Holidays:
    GET    /api/holidays
    POST   /api/holidays
    DELETE /api/holidays/{id}

  Admin:
    POST   /api/admin/audit                   Audit every employee now

ERROR HANDLING:
  Errors are returned as ErrorResponse with:
  - 400: validation errors, malformed JSON
  - 404: unknown or soft-deleted application, unknown holiday
  - 409: transition not allowed from the current status, ledger inconsistency,
         concurrent change, duplicate holiday
  - 500: store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *leave.Service
	Holidays calendar.HolidayStore

	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(svc *leave.Service, holidays calendar.HolidayStore) *Handler {
	return &Handler{
		Service:  svc,
		Holidays: holidays,
		validate: validator.New(),
		logger:   zap.L().Named("api"),
	}
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	app, err := h.Service.Create(r.Context(), leave.CreateInput{
		ID:          req.ID,
		EmployeeID:  req.EmployeeID,
		ManagerID:   req.ManagerID,
		Category:    leave.Category(req.Category),
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(*app))
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.Service.Approve(r.Context(), chi.URLParam(r, "id"), req.ManagerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.Service.Reject(r.Context(), chi.URLParam(r, "id"), req.ManagerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) ReviseApplication(w http.ResponseWriter, r *http.Request) {
	var req ReviseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := leave.ReviseInput{Description: req.Description}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		in.EndTime = *req.EndTime
	}

	app, err := h.Service.Revise(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

func (h *Handler) GetAdjustments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTOs(entries))
}

func (h *Handler) GetSignatures(w http.ResponseWriter, r *http.Request) {
	sigs, err := h.Service.Signatures(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSignatureDTOs(sigs))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployeeApplications(w http.ResponseWriter, r *http.Request) {
	filter := leave.ApplicationFilter{
		EmployeeID: chi.URLParam(r, "id"),
		Status:     leave.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "Invalid include_deleted", err)
			return
		}
		filter.IncludeDeleted = b
	}

	apps, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Service.Balances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

func (h *Handler) AuditEmployee(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

// AuditAll runs the audit for every employee immediately.
func (h *Handler) AuditAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Service.AuditAll(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]AuditDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toAuditDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Holidays.ListHolidays(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid date", err)
		return
	}

	hol := calendar.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := h.Holidays.SaveHoliday(r.Context(), hol); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Holidays.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var ve *leave.ValidationError
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "Application not found", err)
	case errors.Is(err, calendar.ErrHolidayNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Holiday not found", err)
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation", "Validation failed", err)
	case errors.Is(err, leave.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "Transition not allowed", err)
	case errors.Is(err, leave.ErrLedgerInconsistency):
		writeError(w, http.StatusConflict, "ledger_inconsistency", "Ledger inconsistency", err)
	case errors.Is(err, leave.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "conflict", "Application changed, retry", err)
	case errors.Is(err, calendar.ErrHolidayExists):
		writeError(w, http.StatusConflict, "conflict", "Holiday already exists", err)
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
