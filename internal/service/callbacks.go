package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"orchestrator/internal/domain"
)

// Worker callbacks are delivered at least once, so every entry point below
// tolerates unknown request ids, duplicate deliveries and stale statuses by
// absorbing them. Version conflicts with a concurrent user action are
// resolved by reloading and re-applying a bounded number of times.
const callbackApplyAttempts = 3

// Error codes reported by the worker that map to user-caused rejection
// instead of a system failure.
const errorCodeContentPolicy = "CONTENT_POLICY"

// OnSampleResult ingests a sample-generation result: appends the delivered
// samples, moves the request to AWAITING_SELECTION and alerts the user.
func (o *Orchestrator) OnSampleResult(ctx context.Context, requestID uuid.UUID, samples []domain.AssetInfo) error {
	log := o.logger.With().Str("request_id", requestID.String()).Logger()
	for attempt := 0; attempt < callbackApplyAttempts; attempt++ {
		req, err := o.repo.GetByID(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("sample callback for unknown request, ignoring")
			return nil
		}
		if err != nil {
			return err
		}

		switch req.Status {
		case domain.StatusProcessingSamples:
			req.AddSampleResults(samples)
			if err := req.UpdateStatus(domain.StatusAwaitingSelection, "", nil); err != nil {
				return err
			}
			if err := o.persist(ctx, req); err != nil {
				if errors.Is(err, domain.ErrConcurrentModification) {
					continue
				}
				return err
			}
			log.Info().Int("samples", len(samples)).Msg("request awaiting sample selection")
			o.notifier.Send(ctx, req.UserID, NotificationSamplesReady, samplesReadyMessage(), map[string]string{"request_id": req.ID.String()})
			return nil
		case domain.StatusAwaitingSelection:
			if sameAssetIDs(req.SampleAssets, samples) {
				log.Debug().Msg("duplicate sample callback, ignoring")
			} else {
				log.Warn().Msg("conflicting sample callback for request already awaiting selection")
			}
			return nil
		default:
			log.Warn().Str("status", string(req.Status)).Msg("stale sample callback, ignoring")
			return nil
		}
	}
	log.Error().Msg("giving up on sample callback after repeated write conflicts")
	return nil
}

// OnFinalResult ingests a final-generation result: stores the final asset,
// completes the request and alerts the user.
func (o *Orchestrator) OnFinalResult(ctx context.Context, requestID uuid.UUID, finalAsset domain.AssetInfo) error {
	log := o.logger.With().Str("request_id", requestID.String()).Logger()
	for attempt := 0; attempt < callbackApplyAttempts; attempt++ {
		req, err := o.repo.GetByID(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("final callback for unknown request, ignoring")
			return nil
		}
		if err != nil {
			return err
		}

		switch req.Status {
		case domain.StatusProcessingFinal:
			req.SetFinalAsset(finalAsset)
			if err := req.UpdateStatus(domain.StatusCompleted, "", nil); err != nil {
				return err
			}
			if err := o.persist(ctx, req); err != nil {
				if errors.Is(err, domain.ErrConcurrentModification) {
					continue
				}
				return err
			}
			log.Info().Str("asset_id", finalAsset.AssetID).Msg("request completed")
			o.notifier.Send(ctx, req.UserID, NotificationFinalReady, finalReadyMessage(), map[string]string{
				"request_id": req.ID.String(),
				"asset_url":  finalAsset.URL,
			})
			return nil
		case domain.StatusCompleted:
			if req.FinalAsset != nil && req.FinalAsset.AssetID == finalAsset.AssetID {
				log.Debug().Msg("duplicate final callback, ignoring")
			} else {
				log.Warn().Msg("conflicting final callback for completed request")
			}
			return nil
		default:
			log.Warn().Str("status", string(req.Status)).Msg("stale final callback, ignoring")
			return nil
		}
	}
	log.Error().Msg("giving up on final callback after repeated write conflicts")
	return nil
}

// OnError ingests a worker error. Content-policy violations are user-caused
// and reject the request without a refund; anything else fails it and
// refunds the cost attributable to the failed stage, best-effort. The
// callback is always acknowledged so the worker stops redelivering.
func (o *Orchestrator) OnError(ctx context.Context, requestID uuid.UUID, errorCode, errorMessage string, errorDetails map[string]any, failedStage string) error {
	log := o.logger.With().Str("request_id", requestID.String()).Logger()
	target := domain.StatusFailed
	if strings.Contains(strings.ToUpper(errorCode), errorCodeContentPolicy) {
		target = domain.StatusContentRejected
	}

	for attempt := 0; attempt < callbackApplyAttempts; attempt++ {
		req, err := o.repo.GetByID(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("error callback for unknown request, ignoring")
			return nil
		}
		if err != nil {
			return err
		}

		if req.Status == target && req.ErrorMessage == errorMessage {
			log.Debug().Msg("duplicate error callback, ignoring")
			return nil
		}
		if !req.Status.CanTransition(target) {
			log.Warn().Str("status", string(req.Status)).Str("target", string(target)).Msg("stale error callback, ignoring")
			return nil
		}

		if target == domain.StatusFailed {
			amount := req.CreditsCostFinal
			if failedStage == domain.StageSampleProcessing {
				amount = req.CreditsCostSample
			}
			if o.refund(ctx, req, refundReference(req.ID, failedStage), amount, "system error during "+stageOrUnknown(failedStage)) {
				if failedStage == domain.StageSampleProcessing {
					req.RefundSampleCost(amount)
				} else {
					req.RefundFinalCost(amount)
				}
			}
		}

		if err := req.UpdateStatus(target, errorMessage, errorDetails); err != nil {
			return err
		}
		if err := o.persist(ctx, req); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				continue
			}
			return err
		}
		log.Error().Str("error_code", errorCode).Str("failed_stage", failedStage).Str("status", string(target)).Msg("worker reported generation error")

		o.notifier.Send(ctx, req.UserID, NotificationGenerationFailed, failureMessage(failedStage, errorMessage), map[string]string{"request_id": req.ID.String()})
		return nil
	}
	log.Error().Msg("giving up on error callback after repeated write conflicts")
	return nil
}

func refundReference(id uuid.UUID, failedStage string) string {
	return id.String() + ":refund:" + stageOrUnknown(failedStage)
}

func stageOrUnknown(stage string) string {
	if stage == "" {
		return "unknown_stage"
	}
	return stage
}

func sameAssetIDs(stored, delivered []domain.AssetInfo) bool {
	if len(stored) != len(delivered) {
		return false
	}
	for i := range stored {
		if stored[i].AssetID != delivered[i].AssetID {
			return false
		}
	}
	return true
}
