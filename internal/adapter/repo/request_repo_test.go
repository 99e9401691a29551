package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"orchestrator/internal/domain"
)

type storedRow struct {
	args    []any
	version int64
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubDB mimics the generation_requests table closely enough to exercise
// the SQL the repository issues, including the version guard.
type stubDB struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*storedRow

	execErr error
}

func newStubDB() *stubDB {
	return &stubDB{rows: make(map[uuid.UUID]*storedRow)}
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	switch {
	case strings.HasPrefix(strings.TrimSpace(query), "INSERT INTO generation_requests"):
		id := args[0].(uuid.UUID)
		s.rows[id] = &storedRow{args: append([]any(nil), args...), version: 1}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(strings.TrimSpace(query), "UPDATE generation_requests"):
		id := args[0].(uuid.UUID)
		version := args[1].(int64)
		row, ok := s.rows[id]
		if !ok || row.version != version {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		// Rebuild the row in insert-arg order from the update args.
		row.args = []any{
			id, row.args[1], row.args[2],
			args[2], args[3], args[4], args[5], args[6], args[7], args[8],
			args[9], args[10], args[11], args[12], args[13], row.args[15], args[14],
		}
		row.version = version + 1
		return pgconn.NewCommandTag("UPDATE 1"), nil
	default:
		return pgconn.CommandTag{}, errors.New("unexpected query: " + query)
	}
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := args[0].(uuid.UUID)
	row, ok := s.rows[id]
	if !ok {
		return stubRow{}
	}
	a := row.args
	version := row.version
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = a[0].(uuid.UUID)
		*dest[1].(*string) = a[1].(string)
		*dest[2].(*string) = a[2].(string)
		*dest[3].(*string) = a[3].(string)
		*dest[4].(*string) = a[4].(string)
		*dest[5].(*[]byte) = a[5].([]byte)
		*dest[6].(*domain.Status) = a[6].(domain.Status)
		*dest[7].(*string) = a[7].(string)
		*dest[8].(*[]byte) = asBytes(a[8])
		*dest[9].(*[]byte) = a[9].([]byte)
		*dest[10].(*string) = a[10].(string)
		*dest[11].(*[]byte) = asBytes(a[11])
		*dest[12].(*string) = a[12].(string)
		*dest[13].(*string) = a[13].(string)
		*dest[14].(*string) = a[14].(string)
		*dest[15].(*time.Time) = a[15].(time.Time)
		*dest[16].(*time.Time) = a[16].(time.Time)
		*dest[17].(*int64) = version
		return nil
	}}
}

func asBytes(v any) []byte {
	if v == nil {
		return nil
	}
	return v.([]byte)
}

func sampleRequest() *domain.GenerationRequest {
	req := domain.NewGenerationRequest("user-1", "project-1", "a poster", "warm", domain.GenerationParameters{OutputFormat: "png"})
	req.AddSampleCost(decimal.RequireFromString("0.25"))
	return req
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	db := newStubDB()
	r := NewGenerationRequestRepository(db)
	req := sampleRequest()
	req.AddSampleResults([]domain.AssetInfo{{AssetID: "s1", URL: "http://cdn/s1", Format: "png"}})

	if err := r.Create(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Version != 1 {
		t.Errorf("version after create = %d, want 1", req.Version)
	}

	got, err := r.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "user-1" || got.InputPrompt != "a poster" {
		t.Errorf("loaded %q / %q", got.UserID, got.InputPrompt)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("status = %s", got.Status)
	}
	if got.InputParameters.OutputFormat != "png" {
		t.Errorf("parameters = %+v", got.InputParameters)
	}
	if len(got.SampleAssets) != 1 || got.SampleAssets[0].AssetID != "s1" {
		t.Errorf("samples = %+v", got.SampleAssets)
	}
	if got.CreditsCostSample.String() != "0.25" {
		t.Errorf("sample cost = %s", got.CreditsCostSample)
	}
	if got.FinalAsset != nil {
		t.Errorf("final asset = %+v, want nil", got.FinalAsset)
	}
	if got.Version != 1 {
		t.Errorf("version = %d", got.Version)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	r := NewGenerationRequestRepository(newStubDB())

	_, err := r.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	db := newStubDB()
	r := NewGenerationRequestRepository(db)
	req := sampleRequest()
	if err := r.Create(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	req.Status = domain.StatusValidatingCredits
	if err := r.Update(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Version != 2 {
		t.Errorf("version after update = %d, want 2", req.Version)
	}

	got, err := r.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusValidatingCredits || got.Version != 2 {
		t.Errorf("loaded status %s version %d", got.Status, got.Version)
	}
}

func TestUpdateDetectsLostRace(t *testing.T) {
	db := newStubDB()
	r := NewGenerationRequestRepository(db)
	req := sampleRequest()
	if err := r.Create(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	// A second reader updates first.
	other, err := r.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	other.Status = domain.StatusValidatingCredits
	if err := r.Update(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	req.Status = domain.StatusValidatingCredits
	err = r.Update(context.Background(), req)
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if req.Version != 1 {
		t.Errorf("version must not advance on a lost race, got %d", req.Version)
	}
}

func TestUpdatePersistsErrorContext(t *testing.T) {
	db := newStubDB()
	r := NewGenerationRequestRepository(db)
	req := sampleRequest()
	req.Status = domain.StatusValidatingCredits
	if err := r.Create(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if err := req.UpdateStatus(domain.StatusFailed, "worker unreachable", map[string]any{"code": "TIMEOUT"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Update(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed || got.ErrorMessage != "worker unreachable" {
		t.Errorf("loaded %s / %q", got.Status, got.ErrorMessage)
	}
	if got.ErrorDetails["code"] != "TIMEOUT" {
		t.Errorf("details = %v", got.ErrorDetails)
	}
}
