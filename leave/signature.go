package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Signature records who approved or rejected an application, and when.
type Signature struct {
	ID            string
	ApplicationID string
	ManagerID     string
	Action        Event
	SignedAt      time.Time
}

// Signer stamps approval provenance. Capturing an actual digital signature is
// the implementation's business; the service only persists what it returns.
type Signer interface {
	Sign(ctx context.Context, app Application, managerID string, action Event) (Signature, error)
}

// DefaultSigner stamps the manager and the current time.
type DefaultSigner struct {
	Now func() time.Time
}

func (s DefaultSigner) Sign(_ context.Context, app Application, managerID string, action Event) (Signature, error) {
	if managerID == "" {
		return Signature{}, &ValidationError{Field: "manager_id", Reason: "required to sign"}
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	return Signature{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		ManagerID:     managerID,
		Action:        action,
		SignedAt:      now,
	}, nil
}
