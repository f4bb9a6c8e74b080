/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  leave and ledger domain types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required fields, enums, formats). Domain invariants such as whole-hour
  intervals are enforced by leave.Service.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateApplicationRequest struct {
	ID          string    `json:"id" validate:"omitempty,uuid"`
	EmployeeID  string    `json:"employee_id" validate:"required"`
	ManagerID   string    `json:"manager_id"`
	Category    string    `json:"category" validate:"required,oneof=personal bonus sick"`
	Description string    `json:"description" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
}

// SignRequest is the body of approve and reject.
type SignRequest struct {
	ManagerID string `json:"manager_id" validate:"required"`
}

// ReviseRequest changes the interval or description. Omitted fields keep
// their current value.
type ReviseRequest struct {
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Description string     `json:"description,omitempty" validate:"max=2000"`
}

type CreateHolidayRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required,max=200"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ApplicationDTO struct {
	ID            string     `json:"id"`
	EmployeeID    string     `json:"employee_id"`
	ManagerID     string     `json:"manager_id,omitempty"`
	Category      string     `json:"category"`
	Description   string     `json:"description"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Hours         int64      `json:"hours"`
	Status        string     `json:"status"`
	Revision      int        `json:"revision"`
	AllowedEvents []string   `json:"allowed_events"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

type AdjustmentDTO struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	ApplicationID string    `json:"application_id"`
	GeneralHours  string    `json:"general_hours"`
	AnnualHours   string    `json:"annual_hours"`
	Returning     bool      `json:"returning"`
	CreatedAt     time.Time `json:"created_at"`
}

type SignatureDTO struct {
	ID        string    `json:"id"`
	ManagerID string    `json:"manager_id"`
	Action    string    `json:"action"`
	SignedAt  time.Time `json:"signed_at"`
}

type BalanceDTO struct {
	Category  string    `json:"category"`
	Pool      string    `json:"pool"`
	UsedHours string    `json:"used_hours"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DriftDTO struct {
	Category string `json:"category"`
	Pool     string `json:"pool"`
	Stored   string `json:"stored_hours"`
	Replayed string `json:"replayed_hours"`
}

type AuditDTO struct {
	EmployeeID string     `json:"employee_id"`
	Balances   int        `json:"balances"`
	Clean      bool       `json:"clean"`
	Drifts     []DriftDTO `json:"drifts"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toApplicationDTO(a leave.Application) ApplicationDTO {
	allowed := []string{}
	if !a.Deleted() {
		for _, ev := range leave.Allowed(a.Status) {
			allowed = append(allowed, string(ev))
		}
	}
	return ApplicationDTO{
		ID:            a.ID,
		EmployeeID:    a.EmployeeID,
		ManagerID:     a.ManagerID,
		Category:      string(a.Category),
		Description:   a.Description,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Hours:         a.Hours,
		Status:        string(a.Status),
		Revision:      a.Revision,
		AllowedEvents: allowed,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		DeletedAt:     a.DeletedAt,
	}
}

func toAdjustmentDTOs(entries []ledger.Adjustment) []AdjustmentDTO {
	out := make([]AdjustmentDTO, len(entries))
	for i, e := range entries {
		out[i] = AdjustmentDTO{
			ID:            e.ID,
			Seq:           e.Seq,
			ApplicationID: e.ApplicationID,
			GeneralHours:  e.GeneralHours.String(),
			AnnualHours:   e.AnnualHours.String(),
			Returning:     e.Returning,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}

func toSignatureDTOs(sigs []leave.Signature) []SignatureDTO {
	out := make([]SignatureDTO, len(sigs))
	for i, s := range sigs {
		out[i] = SignatureDTO{ID: s.ID, ManagerID: s.ManagerID, Action: string(s.Action), SignedAt: s.SignedAt}
	}
	return out
}

func toBalanceDTOs(balances []ledger.Balance) []BalanceDTO {
	out := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		out[i] = BalanceDTO{
			Category:  b.Key.Category,
			Pool:      string(b.Key.Pool),
			UsedHours: b.UsedHours.String(),
			UpdatedAt: b.UpdatedAt,
		}
	}
	return out
}

func toAuditDTO(r leave.AuditReport) AuditDTO {
	drifts := make([]DriftDTO, len(r.Drifts))
	for i, d := range r.Drifts {
		drifts[i] = DriftDTO{
			Category: d.Key.Category,
			Pool:     string(d.Key.Pool),
			Stored:   d.Stored.String(),
			Replayed: d.Replayed.String(),
		}
	}
	return AuditDTO{EmployeeID: r.EmployeeID, Balances: r.Balances, Clean: r.Clean(), Drifts: drifts}
}

func toHolidayDTO(h calendar.Holiday) HolidayDTO {
	return HolidayDTO{ID: h.ID, Date: h.Date.Format(time.DateOnly), Name: h.Name, Recurring: h.Recurring}
}
