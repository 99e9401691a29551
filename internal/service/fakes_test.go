package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orchestrator/internal/domain"
)

// fakeRepo is an in-memory repository with the same optimistic version
// semantics as the Postgres implementation.
type fakeRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*domain.GenerationRequest

	createErr error
	getErr    error
	updateErr error
	// conflictNext forces the next n Update calls to report a version
	// conflict without touching the stored row.
	conflictNext int
	updates      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: make(map[uuid.UUID]*domain.GenerationRequest)}
}

func cloneRequest(r *domain.GenerationRequest) *domain.GenerationRequest {
	c := *r
	c.SampleAssets = append([]domain.AssetInfo(nil), r.SampleAssets...)
	if r.FinalAsset != nil {
		fa := *r.FinalAsset
		c.FinalAsset = &fa
	}
	return &c
}

func (f *fakeRepo) Create(ctx context.Context, r *domain.GenerationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	r.Version = 1
	f.requests[r.ID] = cloneRequest(r)
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	stored, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRequest(stored), nil
}

func (f *fakeRepo) Update(ctx context.Context, r *domain.GenerationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.conflictNext > 0 {
		f.conflictNext--
		return domain.ErrConcurrentModification
	}
	stored, ok := f.requests[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != r.Version {
		return domain.ErrConcurrentModification
	}
	r.Version++
	f.requests[r.ID] = cloneRequest(r)
	return nil
}

func (f *fakeRepo) stored(id uuid.UUID) *domain.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRequest(f.requests[id])
}

// onlyStoredRequest returns the single persisted aggregate, for tests that
// never learn the generated id because the operation failed.
func onlyStoredRequest(t *testing.T, repo *fakeRepo) *domain.GenerationRequest {
	t.Helper()
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.requests) != 1 {
		t.Fatalf("stored requests = %d, want 1", len(repo.requests))
	}
	for _, r := range repo.requests {
		return cloneRequest(r)
	}
	return nil
}

type ledgerCall struct {
	userID      string
	referenceID string
	amount      decimal.Decimal
	reason      string
}

// fakeLedger records deductions and refunds and enforces the reference-keyed
// idempotency contract of the real credit service.
type fakeLedger struct {
	mu         sync.Mutex
	deductions []ledgerCall
	refunds    []ledgerCall

	tier      string
	tierErr   error
	checkErr  error
	deductErr error
	refundErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{tier: "free"}
}

func (f *fakeLedger) Check(ctx context.Context, userID string, amount decimal.Decimal) error {
	return f.checkErr
}

func (f *fakeLedger) Deduct(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deductErr != nil {
		return f.deductErr
	}
	for _, d := range f.deductions {
		if d.referenceID == referenceID {
			return nil
		}
	}
	f.deductions = append(f.deductions, ledgerCall{userID, referenceID, amount, reason})
	return nil
}

func (f *fakeLedger) Refund(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	for _, r := range f.refunds {
		if r.referenceID == referenceID {
			return nil
		}
	}
	f.refunds = append(f.refunds, ledgerCall{userID, referenceID, amount, reason})
	return nil
}

func (f *fakeLedger) SubscriptionTier(ctx context.Context, userID string) (string, error) {
	if f.tierErr != nil {
		return "", f.tierErr
	}
	return f.tier, nil
}

// netCharged is what the ledger has taken from the user after refunds.
func (f *fakeLedger) netCharged() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	net := decimal.Zero
	for _, d := range f.deductions {
		net = net.Add(d.amount)
	}
	for _, r := range f.refunds {
		net = net.Sub(r.amount)
	}
	return net
}

type fakeDispatcher struct {
	mu        sync.Mutex
	published []*domain.GenerationJobPayload
	err       error
}

func (f *fakeDispatcher) Publish(ctx context.Context, job *domain.GenerationJobPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job)
	return nil
}

type sentNotification struct {
	userID           string
	notificationType string
	message          string
	metadata         map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Send(ctx context.Context, userID, notificationType, message string, metadata map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID, notificationType, message, metadata})
}

var errLedgerDown = errors.New("ledger unreachable")
