package domain

// Status enumerates the lifecycle states of a generation request.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusValidatingCredits Status = "VALIDATING_CREDITS"
	StatusPublishingToQueue Status = "PUBLISHING_TO_QUEUE"
	StatusProcessingSamples Status = "PROCESSING_SAMPLES"
	StatusAwaitingSelection Status = "AWAITING_SELECTION"
	StatusProcessingFinal   Status = "PROCESSING_FINAL"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusContentRejected   Status = "CONTENT_REJECTED"
)

// allowedTransitions is the complete edge set of the request state machine.
// AWAITING_SELECTION and FAILED re-enter PROCESSING_SAMPLES on regeneration.
var allowedTransitions = map[Status][]Status{
	StatusPending:           {StatusValidatingCredits},
	StatusValidatingCredits: {StatusPublishingToQueue, StatusFailed},
	StatusPublishingToQueue: {StatusProcessingSamples, StatusFailed},
	StatusProcessingSamples: {StatusAwaitingSelection, StatusFailed, StatusContentRejected},
	StatusAwaitingSelection: {StatusProcessingFinal, StatusProcessingSamples},
	StatusProcessingFinal:   {StatusCompleted, StatusFailed, StatusContentRejected},
	StatusFailed:            {StatusProcessingSamples},
	StatusCompleted:         nil,
	StatusContentRejected:   nil,
}

// Known reports whether s is a member of the status enum.
func (s Status) Known() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether the state machine can leave s without user action.
// FAILED is listed as non-terminal because regeneration may re-enter it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusContentRejected
}

// CanTransition reports whether the edge s -> to exists.
func (s Status) CanTransition(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
