// Package plan defines the marketing-plan domain model: the Plan record,
// its generation lifecycle, and the append-only interaction log.
package plan

import (
	"fmt"
	"time"
)

// Status represents the generation lifecycle state of a plan.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusInProgress, StatusAnalyzing, StatusGenerating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transition validates a lifecycle move. It is the single place where legal
// transitions are defined:
//
//	in_progress → analyzing → generating → completed
//
// failed is reachable from any non-completed state, and a fresh run may
// restart into analyzing from failed or from a stale mid-run state. Only
// completed is sticky. Direct record updates bypass this on purpose (manual
// correction escape hatch).
func Transition(from, to Status) error {
	if !ValidStatus(from) || !ValidStatus(to) {
		return &StateError{From: from, To: to}
	}
	if from == StatusCompleted {
		return &StateError{From: from, To: to}
	}
	if to == StatusFailed || to == StatusAnalyzing {
		return nil
	}
	ok := (from == StatusAnalyzing && to == StatusGenerating) ||
		(from == StatusGenerating && to == StatusCompleted)
	if !ok {
		return &StateError{From: from, To: to}
	}
	return nil
}

// StateError reports an illegal lifecycle transition.
type StateError struct {
	From Status
	To   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal plan transition %s → %s", e.From, e.To)
}

// Plan is the aggregate root: one user's generation request and its output.
// JSON-typed fields are carried as serialized text; an empty string means
// the field is not populated yet. GeneratedContent is non-empty iff the
// plan is completed.
type Plan struct {
	ID                     string
	BusinessContext        string // JSON object text
	QuestionnaireResponses string // JSON object text
	ClaudeAnalysis         string // JSON text, set by the analysis step
	GeneratedContent       string // JSON text, set on completion
	Metadata               string // JSON diagnostic record (timings, errors)
	Status                 Status
	CompletionPercentage   int
	CreatedAt              time.Time
	UpdatedAt              time.Time
	CompletedAt            *time.Time
}

// Interaction types recorded by the orchestrator and the document/email
// endpoints. Error variants carry the failed step's diagnostic payload.
const (
	InteractionAnalysis        = "analysis"
	InteractionAnalysisError   = "analysis_error"
	InteractionGeneration      = "generation"
	InteractionGenerationError = "generation_error"
	InteractionPDFDownload     = "pdf_download"
	InteractionPDFError        = "pdf_download_error"
	InteractionEmailCompletion = "email_completion"
	InteractionEmailShare      = "email_share"
	InteractionEmailError      = "email_error"
)

// Interaction is one append-only audit record tied to a plan. Rows are never
// updated or deleted individually; they cascade with their plan.
type Interaction struct {
	ID               string
	PlanID           string
	Type             string
	PromptData       string // what was sent, JSON text
	Response         string // what was received, or the error payload
	ProcessingTimeMs int64
	CreatedAt        time.Time
}
