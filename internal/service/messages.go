package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Notification types consumed by the notification service.
const (
	NotificationSamplesReady     = "samples_ready"
	NotificationFinalReady       = "final_asset_ready"
	NotificationGenerationFailed = "generation_failed"
)

func samplesReadyMessage() string {
	return "Your AI creative samples are ready for review!"
}

func finalReadyMessage() string {
	return "Your final AI creative is generated and ready!"
}

func failureMessage(failedStage, errorMessage string) string {
	if label := stageLabel(failedStage); label != "" {
		return fmt.Sprintf("%s failed: %s", label, errorMessage)
	}
	return fmt.Sprintf("AI generation failed: %s", errorMessage)
}

// stageLabel turns a worker stage identifier into a human-readable label,
// e.g. "sample_processing" -> "Sample Processing".
func stageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(stage, "_", " "))
}
