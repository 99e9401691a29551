package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
	"orchestrator/internal/service"
)

// App bundles the handler dependencies behind one receiver.
type App struct {
	Orchestrator *service.Orchestrator
	Logger       zerolog.Logger
}

// NewApp creates the handler container.
func NewApp(orchestrator *service.Orchestrator, logger zerolog.Logger) *App {
	return &App{Orchestrator: orchestrator, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// domainError maps orchestration errors to HTTP responses. Unrecognized
// errors stay opaque to the client.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "generation request not found")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "not authorized for this request")
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		a.error(w, http.StatusConflict, "conflict", "request was modified concurrently, retry")
	case errors.Is(err, domain.ErrJobPublish):
		a.error(w, http.StatusInternalServerError, "job_publish_failed", "failed to queue generation job")
	case errors.Is(err, domain.ErrLedgerUnavailable):
		a.error(w, http.StatusServiceUnavailable, "ledger_unavailable", "credit service unavailable")
	default:
		a.Logger.Error().Err(err).Msg("unhandled orchestration error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
