// Package leave implements the leave application lifecycle on top of the
// balance ledger: an explicit transition table plus a service that runs each
// transition's side effects inside one store transaction.
package leave

import (
	"context"
	"time"
)

// =============================================================================
// CATEGORY
// =============================================================================

type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryBonus    Category = "bonus"
	CategorySick     Category = "sick"
)

// Categories lists the accepted leave categories.
var Categories = []Category{CategoryPersonal, CategoryBonus, CategorySick}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// =============================================================================
// APPLICATION
// =============================================================================

// Application is a leave application. Hours is derived from the working-time
// calendar and never accepted from callers.
type Application struct {
	ID          string
	EmployeeID  string
	ManagerID   string
	Category    Category
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Hours       int64
	Status      Status
	Revision    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (a Application) Deleted() bool { return a.DeletedAt != nil }

// lockKey is the balance pair an application charges.
func (a Application) lockKey() string {
	return "leave:balance:" + a.EmployeeID + ":" + string(a.Category)
}

// ApplicationFilter narrows List results.
type ApplicationFilter struct {
	EmployeeID     string
	Status         Status
	IncludeDeleted bool
}

// =============================================================================
// INPUTS
// =============================================================================

type CreateInput struct {
	ID          string // optional; generated when empty
	EmployeeID  string
	ManagerID   string
	Category    Category
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

// ReviseInput carries the fields a revision may change. Zero values keep the
// current value. Category is fixed for the life of an application.
type ReviseInput struct {
	StartTime   time.Time
	EndTime     time.Time
	Description string
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// WorkingTimeCalendar converts an interval into billable seconds.
type WorkingTimeCalendar interface {
	ElapsedSeconds(ctx context.Context, start, end time.Time) (int64, error)
}
