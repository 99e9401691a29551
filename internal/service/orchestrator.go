package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"orchestrator/internal/domain"
)

// CallbackURLs are the three endpoints the external worker answers on. They
// are baked into every job payload so the worker needs no other discovery.
type CallbackURLs struct {
	SampleResult string
	FinalResult  string
	Error        string
}

// NewCallbackURLs derives the worker-facing callback endpoints from the
// public base URL of this service.
func NewCallbackURLs(baseURL string) CallbackURLs {
	base := strings.TrimRight(baseURL, "/")
	return CallbackURLs{
		SampleResult: base + "/api/v1/callbacks/sample-result",
		FinalResult:  base + "/api/v1/callbacks/final-result",
		Error:        base + "/api/v1/callbacks/error",
	}
}

// Orchestrator coordinates the generation saga: it owns every mutation of
// the GenerationRequest aggregate and the compensating refunds that keep the
// credit accounting consistent across partial failures.
type Orchestrator struct {
	repo       domain.GenerationRequestRepository
	ledger     domain.CreditLedger
	dispatcher domain.JobDispatcher
	notifier   domain.Notifier
	pricing    Pricing
	callbacks  CallbackURLs
	logger     zerolog.Logger
}

// NewOrchestrator wires the orchestration engine with its four collaborators.
func NewOrchestrator(
	repo domain.GenerationRequestRepository,
	ledger domain.CreditLedger,
	dispatcher domain.JobDispatcher,
	notifier domain.Notifier,
	pricing Pricing,
	callbacks CallbackURLs,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		ledger:     ledger,
		dispatcher: dispatcher,
		notifier:   notifier,
		pricing:    pricing,
		callbacks:  callbacks,
		logger:     logger,
	}
}

// InitiateInput carries everything needed to start a generation workflow.
type InitiateInput struct {
	UserID        string
	ProjectID     string
	InputPrompt   string
	StyleGuidance string
	Parameters    domain.GenerationParameters
}

func (in *InitiateInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		return fmt.Errorf("%w: project_id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.InputPrompt) == "" {
		return fmt.Errorf("%w: input_prompt is required", domain.ErrValidation)
	}
	in.Parameters.Normalize()
	return in.Parameters.Validate()
}

// Initiate starts a new generation workflow: tariff lookup, credit check,
// aggregate creation, deduction, job publish. A publish failure after a
// successful deduction is compensated with a refund before the error
// surfaces.
func (o *Orchestrator) Initiate(ctx context.Context, in InitiateInput) (*domain.GenerationRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tier, err := o.ledger.SubscriptionTier(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	cost := o.pricing.SampleCost(tier)
	if cost.IsPositive() {
		if err := o.ledger.Check(ctx, in.UserID, cost); err != nil {
			return nil, err
		}
	}

	req := domain.NewGenerationRequest(in.UserID, in.ProjectID, in.InputPrompt, in.StyleGuidance, in.Parameters)
	if err := req.UpdateStatus(domain.StatusValidatingCredits, "", nil); err != nil {
		return nil, err
	}
	if err := o.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	o.logger.Info().Str("request_id", req.ID.String()).Str("user_id", req.UserID).Msg("generation request created")

	ref := sampleReference(req.ID)
	if cost.IsPositive() {
		if err := o.ledger.Deduct(ctx, req.UserID, ref, cost, "sample_generation_fee"); err != nil {
			o.failRequest(ctx, req, "credit deduction failed", nil)
			return nil, err
		}
		req.AddSampleCost(cost)
	}

	if err := req.UpdateStatus(domain.StatusPublishingToQueue, "", nil); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, req); err != nil {
		if o.refund(ctx, req, ref, cost, "write conflict after sample deduction") {
			req.RefundSampleCost(cost)
		}
		o.failRequest(ctx, req, "request state changed during processing", nil)
		return nil, err
	}

	if err := o.dispatcher.Publish(ctx, o.jobPayload(req, domain.JobTypeSampleGeneration)); err != nil {
		o.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("sample job publish failed")
		if o.refund(ctx, req, ref, cost, "job publish failure") {
			req.RefundSampleCost(cost)
		}
		o.failRequest(ctx, req, "failed to queue generation job", nil)
		return nil, fmt.Errorf("%w: %v", domain.ErrJobPublish, err)
	}

	if err := req.UpdateStatus(domain.StatusProcessingSamples, "", nil); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetStatus loads a generation request by id.
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, error) {
	return o.repo.GetByID(ctx, id)
}

// SelectSampleAndInitiateFinal records the user's sample choice, charges the
// resolution-tiered final tariff and dispatches the final-generation job.
func (o *Orchestrator) SelectSampleAndInitiateFinal(ctx context.Context, requestID uuid.UUID, userID, sampleID, desiredResolution string) (*domain.GenerationRequest, error) {
	req, err := o.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if req.Status != domain.StatusAwaitingSelection {
		return nil, fmt.Errorf("%w: cannot select sample from status %s", domain.ErrInvalidState, req.Status)
	}
	if !req.HasSample(sampleID) {
		return nil, fmt.Errorf("%w: sample %q not found in this request", domain.ErrValidation, sampleID)
	}

	cost := o.pricing.FinalCost(desiredResolution)
	if err := o.ledger.Check(ctx, userID, cost); err != nil {
		return nil, err
	}
	ref := finalReference(req.ID)
	if err := o.ledger.Deduct(ctx, userID, ref, cost, "final_generation_fee"); err != nil {
		return nil, err
	}

	if err := req.SetSelectedSample(sampleID); err != nil {
		return nil, err
	}
	if desiredResolution != "" {
		req.InputParameters.DesiredResolution = strings.ToLower(desiredResolution)
	}
	req.AddFinalCost(cost)
	if err := req.UpdateStatus(domain.StatusProcessingFinal, "", nil); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, req); err != nil {
		o.refund(ctx, req, ref, cost, "write conflict after final deduction")
		return nil, err
	}

	if err := o.dispatcher.Publish(ctx, o.jobPayload(req, domain.JobTypeFinalGeneration)); err != nil {
		o.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("final job publish failed")
		if o.refund(ctx, req, ref, cost, "job publish failure") {
			req.RefundFinalCost(cost)
		}
		o.failRequest(ctx, req, "failed to queue final generation job", nil)
		return nil, fmt.Errorf("%w: %v", domain.ErrJobPublish, err)
	}
	return req, nil
}

// TriggerSampleRegeneration restarts the sample stage of an existing
// request. Previously generated samples are discarded, the regeneration
// tariff accumulates onto the sample-stage cost, and a fresh job is
// dispatched.
func (o *Orchestrator) TriggerSampleRegeneration(ctx context.Context, requestID uuid.UUID, userID, updatedPrompt, updatedStyleGuidance string) (*domain.GenerationRequest, error) {
	req, err := o.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if req.Status != domain.StatusAwaitingSelection && req.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: cannot regenerate from status %s", domain.ErrInvalidState, req.Status)
	}

	tier, err := o.ledger.SubscriptionTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	cost := o.pricing.RegenerationCost(tier)
	ref := regenerationReference(req.ID)
	if cost.IsPositive() {
		if err := o.ledger.Check(ctx, userID, cost); err != nil {
			return nil, err
		}
		if err := o.ledger.Deduct(ctx, userID, ref, cost, "sample_regeneration_fee"); err != nil {
			return nil, err
		}
		req.AddSampleCost(cost)
	}

	if updatedPrompt != "" {
		req.InputPrompt = updatedPrompt
	}
	if updatedStyleGuidance != "" {
		req.StyleGuidance = updatedStyleGuidance
	}
	req.ClearSamples()
	if err := req.UpdateStatus(domain.StatusProcessingSamples, "", nil); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, req); err != nil {
		o.refund(ctx, req, ref, cost, "write conflict after regeneration deduction")
		return nil, err
	}

	if err := o.dispatcher.Publish(ctx, o.jobPayload(req, domain.JobTypeSampleRegeneration)); err != nil {
		o.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("regeneration job publish failed")
		if o.refund(ctx, req, ref, cost, "job publish failure") {
			req.RefundSampleCost(cost)
		}
		o.failRequest(ctx, req, "failed to queue regeneration job", nil)
		return nil, fmt.Errorf("%w: %v", domain.ErrJobPublish, err)
	}
	return req, nil
}

func (o *Orchestrator) jobPayload(req *domain.GenerationRequest, jobType domain.JobType) *domain.GenerationJobPayload {
	job := &domain.GenerationJobPayload{
		GenerationRequestID: req.ID,
		UserID:              req.UserID,
		ProjectID:           req.ProjectID,
		JobType:             jobType,
		InputPrompt:         req.InputPrompt,
		StyleGuidance:       req.StyleGuidance,
		Parameters:          req.InputParameters,
		CallbackURLError:    o.callbacks.Error,
	}
	switch jobType {
	case domain.JobTypeSampleGeneration, domain.JobTypeSampleRegeneration:
		job.CallbackURLSampleResult = o.callbacks.SampleResult
	case domain.JobTypeFinalGeneration:
		job.CallbackURLFinalResult = o.callbacks.FinalResult
		job.SelectedSampleID = req.SelectedSampleID
		job.DesiredResolution = req.InputParameters.DesiredResolution
	}
	return job
}

// persist writes the aggregate through the optimistic version guard.
func (o *Orchestrator) persist(ctx context.Context, req *domain.GenerationRequest) error {
	return o.repo.Update(ctx, req)
}

// failRequest transitions the aggregate to FAILED and persists it. The
// original error keeps propagating, so failures here are only logged.
func (o *Orchestrator) failRequest(ctx context.Context, req *domain.GenerationRequest, message string, details map[string]any) {
	if err := req.UpdateStatus(domain.StatusFailed, message, details); err != nil {
		o.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("cannot transition request to FAILED")
		return
	}
	if err := o.persist(ctx, req); err != nil {
		o.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("failed to persist FAILED status")
	}
}

// refund compensates an earlier deduction and reports whether the ledger
// accepted it. A refund failure is real financial drift, so it is logged at
// the highest severity and flagged for manual reconciliation; it never
// propagates.
func (o *Orchestrator) refund(ctx context.Context, req *domain.GenerationRequest, referenceID string, amount decimal.Decimal, reason string) bool {
	if !amount.IsPositive() {
		return false
	}
	if err := o.ledger.Refund(ctx, req.UserID, referenceID, amount, reason); err != nil {
		o.logger.Error().
			Err(err).
			Str("request_id", req.ID.String()).
			Str("user_id", req.UserID).
			Str("amount", amount.String()).
			Bool("manual_reconciliation_required", true).
			Msg("credit refund failed")
		return false
	}
	o.logger.Info().Str("request_id", req.ID.String()).Str("amount", amount.String()).Str("reason", reason).Msg("credits refunded")
	return true
}

// Ledger references are stage-qualified so the ledger's idempotency key
// pairs each refund with its deduction. Regenerations mint a fresh suffix
// per attempt because each one is a separate charge.
func sampleReference(id uuid.UUID) string {
	return id.String() + ":sample"
}

func finalReference(id uuid.UUID) string {
	return id.String() + ":final"
}

func regenerationReference(id uuid.UUID) string {
	return id.String() + ":regen:" + uuid.NewString()
}
