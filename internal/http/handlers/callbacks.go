package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"orchestrator/internal/domain"
)

// Worker callbacks acknowledge everything the ingestor absorbed with 200 so
// the worker stops redelivering; only infrastructure failures return 5xx,
// which makes the at-least-once worker retry a delivery the service could
// not apply.

type sampleResultCallback struct {
	RequestID uuid.UUID          `json:"request_id"`
	Samples   []domain.AssetInfo `json:"samples"`
}

type finalResultCallback struct {
	RequestID  uuid.UUID        `json:"request_id"`
	FinalAsset domain.AssetInfo `json:"final_asset"`
}

type errorCallback struct {
	RequestID    uuid.UUID      `json:"request_id"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	ErrorDetails map[string]any `json:"error_details"`
	FailedStage  string         `json:"failed_stage"`
}

// CallbackSampleResult ingests a sample-generation result from the worker.
func (a *App) CallbackSampleResult(w http.ResponseWriter, r *http.Request) {
	var body sampleResultCallback
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == uuid.Nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid callback payload")
		return
	}
	if err := a.Orchestrator.OnSampleResult(r.Context(), body.RequestID, body.Samples); err != nil {
		a.Logger.Error().Err(err).Str("request_id", body.RequestID.String()).Msg("sample callback ingestion failed")
		a.error(w, http.StatusInternalServerError, "internal", "callback could not be applied")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "received"})
}

// CallbackFinalResult ingests a final-generation result from the worker.
func (a *App) CallbackFinalResult(w http.ResponseWriter, r *http.Request) {
	var body finalResultCallback
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == uuid.Nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid callback payload")
		return
	}
	if err := a.Orchestrator.OnFinalResult(r.Context(), body.RequestID, body.FinalAsset); err != nil {
		a.Logger.Error().Err(err).Str("request_id", body.RequestID.String()).Msg("final callback ingestion failed")
		a.error(w, http.StatusInternalServerError, "internal", "callback could not be applied")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "received"})
}

// CallbackError ingests an error report from the worker.
func (a *App) CallbackError(w http.ResponseWriter, r *http.Request) {
	var body errorCallback
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == uuid.Nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid callback payload")
		return
	}
	if err := a.Orchestrator.OnError(r.Context(), body.RequestID, body.ErrorCode, body.ErrorMessage, body.ErrorDetails, body.FailedStage); err != nil {
		a.Logger.Error().Err(err).Str("request_id", body.RequestID.String()).Msg("error callback ingestion failed")
		a.error(w, http.StatusInternalServerError, "internal", "callback could not be applied")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "received"})
}
