package resilience

import (
	"time"

	"github.com/meridian-av/leadscan/internal/model"
)

// QuarantineEntry is a raw event pulled out of the pipeline for manual
// inspection. Quarantined events still appear in audit views with their
// reason; they are never silently dropped.
type QuarantineEntry struct {
	ID           string         `json:"id"`
	Event        model.RawEvent `json:"event"`
	Reason       string         `json:"reason"`
	ErrorType    string         `json:"error_type"` // "transient", "schema", or "permanent"
	FailedStage  string         `json:"failed_stage"`
	RetryCount   int            `json:"retry_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastFailedAt time.Time      `json:"last_failed_at"`
}

// ClassifyError categorizes an error for quarantine bookkeeping.
func ClassifyError(err error) string {
	switch {
	case IsSchemaViolation(err):
		return "schema"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
