package domain

import "github.com/google/uuid"

// JobType enumerates the generation job categories the worker understands.
type JobType string

const (
	JobTypeSampleGeneration   JobType = "sample_generation"
	JobTypeSampleRegeneration JobType = "sample_regeneration"
	JobTypeFinalGeneration    JobType = "final_generation"
)

// FailedStage values reported by the worker's error callback.
const (
	StageSampleProcessing = "sample_processing"
	StageFinalProcessing  = "final_processing"
)

// GenerationJobPayload is the message published to the broker for the
// external worker. It carries everything needed to run the stage plus the
// callback URLs the worker answers on, so retried deliveries stay
// correlatable by request id and job_type.
type GenerationJobPayload struct {
	GenerationRequestID uuid.UUID            `json:"generation_request_id"`
	UserID              string               `json:"user_id"`
	ProjectID           string               `json:"project_id"`
	JobType             JobType              `json:"job_type"`
	InputPrompt         string               `json:"input_prompt"`
	StyleGuidance       string               `json:"style_guidance,omitempty"`
	Parameters          GenerationParameters `json:"input_parameters"`

	// Final-stage only.
	SelectedSampleID  string `json:"selected_sample_id,omitempty"`
	DesiredResolution string `json:"desired_resolution,omitempty"`

	CallbackURLSampleResult string `json:"callback_url_sample_result,omitempty"`
	CallbackURLFinalResult  string `json:"callback_url_final_result,omitempty"`
	CallbackURLError        string `json:"callback_url_error"`
}
