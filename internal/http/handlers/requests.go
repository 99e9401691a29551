package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"orchestrator/internal/domain"
	"orchestrator/internal/service"
)

type generationRequestCreate struct {
	UserID             string             `json:"user_id"`
	ProjectID          string             `json:"project_id"`
	InputPrompt        string             `json:"input_prompt"`
	StyleGuidance      string             `json:"style_guidance"`
	OutputFormat       string             `json:"output_format"`
	CustomDimensions   *domain.Dimensions `json:"custom_dimensions"`
	BrandKitID         string             `json:"brand_kit_id"`
	UploadedImageRefs  []string           `json:"uploaded_image_references"`
	TargetPlatformHint []string           `json:"target_platform_hints"`
	EmotionalTone      string             `json:"emotional_tone"`
	CulturalAdaptation map[string]string  `json:"cultural_adaptation_parameters"`
}

type sampleSelection struct {
	UserID            string `json:"user_id"`
	SelectedSampleID  string `json:"selected_sample_id"`
	DesiredResolution string `json:"desired_resolution"`
}

type regenerationRequest struct {
	UserID               string `json:"user_id"`
	UpdatedPrompt        string `json:"updated_prompt"`
	UpdatedStyleGuidance string `json:"updated_style_guidance"`
}

type generationRequestResponse struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	ProjectID         string             `json:"project_id"`
	Status            string             `json:"status"`
	InputPrompt       string             `json:"input_prompt"`
	StyleGuidance     string             `json:"style_guidance,omitempty"`
	SampleAssets      []domain.AssetInfo `json:"sample_assets"`
	SelectedSampleID  string             `json:"selected_sample_id,omitempty"`
	FinalAsset        *domain.AssetInfo  `json:"final_asset,omitempty"`
	CreditsCostSample string             `json:"credits_cost_sample"`
	CreditsCostFinal  string             `json:"credits_cost_final"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func requestResponse(req *domain.GenerationRequest) generationRequestResponse {
	samples := req.SampleAssets
	if samples == nil {
		samples = []domain.AssetInfo{}
	}
	return generationRequestResponse{
		ID:                req.ID.String(),
		UserID:            req.UserID,
		ProjectID:         req.ProjectID,
		Status:            string(req.Status),
		InputPrompt:       req.InputPrompt,
		StyleGuidance:     req.StyleGuidance,
		SampleAssets:      samples,
		SelectedSampleID:  req.SelectedSampleID,
		FinalAsset:        req.FinalAsset,
		CreditsCostSample: req.CreditsCostSample.String(),
		CreditsCostFinal:  req.CreditsCostFinal.String(),
		ErrorMessage:      req.ErrorMessage,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

// GenerationRequestCreate starts a new generation workflow.
func (a *App) GenerationRequestCreate(w http.ResponseWriter, r *http.Request) {
	var body generationRequestCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := a.Orchestrator.Initiate(r.Context(), service.InitiateInput{
		UserID:        body.UserID,
		ProjectID:     body.ProjectID,
		InputPrompt:   body.InputPrompt,
		StyleGuidance: body.StyleGuidance,
		Parameters: domain.GenerationParameters{
			OutputFormat:            body.OutputFormat,
			CustomDimensions:        body.CustomDimensions,
			BrandKitID:              body.BrandKitID,
			UploadedImageReferences: body.UploadedImageRefs,
			TargetPlatformHints:     body.TargetPlatformHint,
			EmotionalTone:           body.EmotionalTone,
			CulturalAdaptation:      body.CulturalAdaptation,
		},
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, requestResponse(req))
}

// GenerationRequestGet returns the current state of a generation request.
func (a *App) GenerationRequestGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	req, err := a.Orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, requestResponse(req))
}

// GenerationRequestSelectSample records a sample choice and starts the final
// generation stage.
func (a *App) GenerationRequestSelectSample(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	var body sampleSelection
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := a.Orchestrator.SelectSampleAndInitiateFinal(r.Context(), id, body.UserID, body.SelectedSampleID, body.DesiredResolution)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, requestResponse(req))
}

// GenerationRequestRegenerate restarts the sample stage.
func (a *App) GenerationRequestRegenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requestID(w, r)
	if !ok {
		return
	}
	var body regenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := a.Orchestrator.TriggerSampleRegeneration(r.Context(), id, body.UserID, body.UpdatedPrompt, body.UpdatedStyleGuidance)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, requestResponse(req))
}

func (a *App) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "request_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "request_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
