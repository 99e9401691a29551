package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerationRequestRepository persists the aggregate. Update must apply a
// single-row optimistic version check and return ErrConcurrentModification
// when the stored version no longer matches the one the caller read.
type GenerationRequestRepository interface {
	Create(ctx context.Context, r *GenerationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*GenerationRequest, error)
	Update(ctx context.Context, r *GenerationRequest) error
}

// CreditLedger is the external account service. Deduct and Refund are
// idempotent at the ledger keyed by referenceID, so a transport-level retry
// with the same reference never double-charges.
type CreditLedger interface {
	Check(ctx context.Context, userID string, amount decimal.Decimal) error
	Deduct(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error
	Refund(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error
	SubscriptionTier(ctx context.Context, userID string) (string, error)
}

// JobDispatcher publishes durable work items for the external worker with
// at-least-once delivery semantics.
type JobDispatcher interface {
	Publish(ctx context.Context, job *GenerationJobPayload) error
}

// Notifier sends best-effort user-facing alerts. Implementations log
// failures instead of returning them.
type Notifier interface {
	Send(ctx context.Context, userID, notificationType, message string, metadata map[string]string)
}
