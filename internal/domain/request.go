package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerationRequest is the aggregate root for one creative-generation
// attempt. It is mutated exclusively by the orchestration service; Version is
// the optimistic concurrency token checked on every persisted update.
type GenerationRequest struct {
	ID        uuid.UUID
	UserID    string
	ProjectID string

	InputPrompt     string
	StyleGuidance   string
	InputParameters GenerationParameters

	Status       Status
	ErrorMessage string
	ErrorDetails map[string]any

	SampleAssets     []AssetInfo
	SelectedSampleID string
	FinalAsset       *AssetInfo

	// Per-stage booked cost: deductions add, granted refunds subtract, so
	// the fields always equal what the ledger has net-charged per stage.
	CreditsCostSample decimal.Decimal
	CreditsCostFinal  decimal.Decimal

	AIModelUsed string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewGenerationRequest creates a PENDING aggregate owned by userID.
func NewGenerationRequest(userID, projectID, prompt, styleGuidance string, params GenerationParameters) *GenerationRequest {
	now := time.Now().UTC()
	return &GenerationRequest{
		ID:                uuid.New(),
		UserID:            userID,
		ProjectID:         projectID,
		InputPrompt:       prompt,
		StyleGuidance:     styleGuidance,
		InputParameters:   params,
		Status:            StatusPending,
		CreditsCostSample: decimal.Zero,
		CreditsCostFinal:  decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// UpdateStatus applies a single state transition, stamping UpdatedAt and
// recording the optional error context. Illegal edges return ErrInvalidState.
func (r *GenerationRequest) UpdateStatus(to Status, errorMessage string, errorDetails map[string]any) error {
	if !to.Known() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, to)
	}
	r.Status = to
	r.ErrorMessage = errorMessage
	r.ErrorDetails = errorDetails
	r.touch()
	return nil
}

// AddSampleResults appends generated samples in delivery order.
func (r *GenerationRequest) AddSampleResults(samples []AssetInfo) {
	r.SampleAssets = append(r.SampleAssets, samples...)
	r.touch()
}

// ClearSamples discards previously generated samples together with any
// selection made against them. Used when regeneration restarts the sample
// stage.
func (r *GenerationRequest) ClearSamples() {
	r.SampleAssets = nil
	r.SelectedSampleID = ""
	r.touch()
}

// SetSelectedSample records the user's choice. The id must reference a
// stored sample.
func (r *GenerationRequest) SetSelectedSample(sampleID string) error {
	if !r.HasSample(sampleID) {
		return fmt.Errorf("%w: sample %q not found in this request", ErrValidation, sampleID)
	}
	r.SelectedSampleID = sampleID
	r.touch()
	return nil
}

// HasSample reports whether a stored sample carries the given asset id.
func (r *GenerationRequest) HasSample(sampleID string) bool {
	for _, s := range r.SampleAssets {
		if s.AssetID == sampleID {
			return true
		}
	}
	return false
}

// SetFinalAsset records the final generated artifact.
func (r *GenerationRequest) SetFinalAsset(asset AssetInfo) {
	r.FinalAsset = &asset
	r.touch()
}

// AddSampleCost accumulates a sample-stage deduction onto the running total.
func (r *GenerationRequest) AddSampleCost(amount decimal.Decimal) {
	r.CreditsCostSample = r.CreditsCostSample.Add(amount)
	r.touch()
}

// AddFinalCost accumulates a final-stage deduction onto the running total.
func (r *GenerationRequest) AddFinalCost(amount decimal.Decimal) {
	r.CreditsCostFinal = r.CreditsCostFinal.Add(amount)
	r.touch()
}

// RefundSampleCost unbooks a granted sample-stage refund so the credit
// equation (deducted - refunded == booked cost) stays true.
func (r *GenerationRequest) RefundSampleCost(amount decimal.Decimal) {
	r.CreditsCostSample = r.CreditsCostSample.Sub(amount)
	if r.CreditsCostSample.IsNegative() {
		r.CreditsCostSample = decimal.Zero
	}
	r.touch()
}

// RefundFinalCost unbooks a granted final-stage refund.
func (r *GenerationRequest) RefundFinalCost(amount decimal.Decimal) {
	r.CreditsCostFinal = r.CreditsCostFinal.Sub(amount)
	if r.CreditsCostFinal.IsNegative() {
		r.CreditsCostFinal = decimal.Zero
	}
	r.touch()
}

// TotalCost is the sum of every credit ever deducted for this request.
func (r *GenerationRequest) TotalCost() decimal.Decimal {
	return r.CreditsCostSample.Add(r.CreditsCostFinal)
}

func (r *GenerationRequest) touch() {
	r.UpdatedAt = time.Now().UTC()
}
