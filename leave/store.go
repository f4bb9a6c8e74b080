package leave

import (
	"context"

	"github.com/warp/leave-ledger/ledger"
)

// Store persists applications and signatures alongside the ledger.
type Store interface {
	ledger.Store

	CreateApplication(ctx context.Context, app Application) error
	UpdateApplication(ctx context.Context, app Application) error

	// GetApplication returns nil, nil when the ID is unknown.
	// Soft-deleted applications are returned with DeletedAt set.
	GetApplication(ctx context.Context, id string) (*Application, error)

	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)

	AppendSignature(ctx context.Context, sig Signature) error
	Signatures(ctx context.Context, applicationID string) ([]Signature, error)

	// EmployeeIDs lists every employee that has an application.
	EmployeeIDs(ctx context.Context) ([]string, error)
}

// TxStore runs fn within one atomic transaction.
// If fn returns an error every write made through the passed Store is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
