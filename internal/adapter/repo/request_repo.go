package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"orchestrator/internal/domain"
)

// DB is the subset of pgxpool.Pool the repository needs. Keeping it narrow
// lets tests substitute an in-memory stub.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GenerationRequestRepositoryPG implements domain.GenerationRequestRepository
// on PostgreSQL with an optimistic version guard on every update.
type GenerationRequestRepositoryPG struct {
	db DB
}

// NewGenerationRequestRepository creates a PostgreSQL-backed repository.
func NewGenerationRequestRepository(db DB) *GenerationRequestRepositoryPG {
	return &GenerationRequestRepositoryPG{db: db}
}

// Create inserts a new aggregate at version 1.
func (r *GenerationRequestRepositoryPG) Create(ctx context.Context, req *domain.GenerationRequest) error {
	query := `
INSERT INTO generation_requests (
    id, user_id, project_id, input_prompt, style_guidance, input_parameters,
    status, error_message, error_details, sample_assets, selected_sample_id,
    final_asset, credits_cost_sample, credits_cost_final, ai_model_used,
    created_at, updated_at, version
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14::numeric, $15, $16, $17, 1);
`
	params, err := json.Marshal(req.InputParameters)
	if err != nil {
		return fmt.Errorf("marshal input parameters: %w", err)
	}
	samples, err := json.Marshal(req.SampleAssets)
	if err != nil {
		return fmt.Errorf("marshal sample assets: %w", err)
	}
	details, err := marshalNullable(req.ErrorDetails != nil, req.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}
	finalAsset, err := marshalNullable(req.FinalAsset != nil, req.FinalAsset)
	if err != nil {
		return fmt.Errorf("marshal final asset: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		req.ID,
		req.UserID,
		req.ProjectID,
		req.InputPrompt,
		req.StyleGuidance,
		params,
		req.Status,
		req.ErrorMessage,
		details,
		samples,
		req.SelectedSampleID,
		finalAsset,
		req.CreditsCostSample.String(),
		req.CreditsCostFinal.String(),
		req.AIModelUsed,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return err
	}
	req.Version = 1
	return nil
}

// GetByID fetches an aggregate by its identifier.
func (r *GenerationRequestRepositoryPG) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, error) {
	query := `
SELECT id, user_id, project_id, input_prompt, style_guidance, input_parameters,
       status, error_message, error_details, sample_assets, selected_sample_id,
       final_asset, credits_cost_sample::text, credits_cost_final::text,
       ai_model_used, created_at, updated_at, version
FROM generation_requests
WHERE id = $1;
`
	row := r.db.QueryRow(ctx, query, id)

	var req domain.GenerationRequest
	var params, samples, details, finalAsset []byte
	var costSample, costFinal string
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.ProjectID,
		&req.InputPrompt,
		&req.StyleGuidance,
		&params,
		&req.Status,
		&req.ErrorMessage,
		&details,
		&samples,
		&req.SelectedSampleID,
		&finalAsset,
		&costSample,
		&costFinal,
		&req.AIModelUsed,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(params, &req.InputParameters); err != nil {
		return nil, fmt.Errorf("unmarshal input parameters: %w", err)
	}
	if len(samples) > 0 {
		if err := json.Unmarshal(samples, &req.SampleAssets); err != nil {
			return nil, fmt.Errorf("unmarshal sample assets: %w", err)
		}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &req.ErrorDetails); err != nil {
			return nil, fmt.Errorf("unmarshal error details: %w", err)
		}
	}
	if len(finalAsset) > 0 {
		var asset domain.AssetInfo
		if err := json.Unmarshal(finalAsset, &asset); err != nil {
			return nil, fmt.Errorf("unmarshal final asset: %w", err)
		}
		req.FinalAsset = &asset
	}
	var err error
	if req.CreditsCostSample, err = decimal.NewFromString(costSample); err != nil {
		return nil, fmt.Errorf("parse credits_cost_sample: %w", err)
	}
	if req.CreditsCostFinal, err = decimal.NewFromString(costFinal); err != nil {
		return nil, fmt.Errorf("parse credits_cost_final: %w", err)
	}
	return &req, nil
}

// Update persists the aggregate guarded by its version: the row is written
// only if nobody else updated it since it was read. A lost race surfaces as
// domain.ErrConcurrentModification, never as a silent overwrite.
func (r *GenerationRequestRepositoryPG) Update(ctx context.Context, req *domain.GenerationRequest) error {
	query := `
UPDATE generation_requests
SET input_prompt = $3,
    style_guidance = $4,
    input_parameters = $5,
    status = $6,
    error_message = $7,
    error_details = $8,
    sample_assets = $9,
    selected_sample_id = $10,
    final_asset = $11,
    credits_cost_sample = $12::numeric,
    credits_cost_final = $13::numeric,
    ai_model_used = $14,
    updated_at = $15,
    version = version + 1
WHERE id = $1 AND version = $2;
`
	params, err := json.Marshal(req.InputParameters)
	if err != nil {
		return fmt.Errorf("marshal input parameters: %w", err)
	}
	samples, err := json.Marshal(req.SampleAssets)
	if err != nil {
		return fmt.Errorf("marshal sample assets: %w", err)
	}
	details, err := marshalNullable(req.ErrorDetails != nil, req.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}
	finalAsset, err := marshalNullable(req.FinalAsset != nil, req.FinalAsset)
	if err != nil {
		return fmt.Errorf("marshal final asset: %w", err)
	}

	tag, err := r.db.Exec(ctx, query,
		req.ID,
		req.Version,
		req.InputPrompt,
		req.StyleGuidance,
		params,
		req.Status,
		req.ErrorMessage,
		details,
		samples,
		req.SelectedSampleID,
		finalAsset,
		req.CreditsCostSample.String(),
		req.CreditsCostFinal.String(),
		req.AIModelUsed,
		req.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	req.Version++
	return nil
}

func marshalNullable(present bool, v any) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}
