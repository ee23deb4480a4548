package reconcile

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one line of the validation artifact. The pipeline owns the
// descriptive columns and the Notified marker; validators own Decision,
// Validator, DecidedAt and Comment.
type Row struct {
	OpportunityID string `csv:"opportunity_id"`
	Title         string `csv:"title"`
	VenueName     string `csv:"venue_name"`
	City          string `csv:"city"`
	Country       string `csv:"country"`
	Segment       string `csv:"segment"`
	Phase         string `csv:"phase"`
	Score         int    `csv:"score"`
	Reason        string `csv:"reason"`
	URL           string `csv:"url"`
	DupClass      string `csv:"dup_class"`
	SuspectedOf   string `csv:"suspected_of"`
	Decision      string `csv:"decision"`
	Validator     string `csv:"validator"`
	DecidedAt     string `csv:"decided_at"`
	Comment       string `csv:"comment"`
	Notified      string `csv:"notified"`
}

// Artifact reads and writes the validation document as a whole. Partial
// updates are not supported: validators may sort and edit the document
// freely between runs, so the engine always reads everything back and
// rewrites everything it publishes.
type Artifact interface {
	// Read returns all rows, or nil and no error when the document does
	// not exist yet.
	Read(path string) ([]Row, error)
	Write(path string, rows []Row) error
}

// ForFormat returns the artifact codec for the given format name.
func ForFormat(format, sheetName string) (Artifact, error) {
	switch strings.ToLower(format) {
	case "xlsx":
		return &XLSXArtifact{SheetName: sheetName}, nil
	case "csv":
		return &CSVArtifact{}, nil
	default:
		return nil, eris.Errorf("reconcile: unsupported artifact format %q", format)
	}
}

var artifactHeader = []string{
	"opportunity_id", "title", "venue_name", "city", "country", "segment",
	"phase", "score", "reason", "url", "dup_class", "suspected_of",
	"decision", "validator", "decided_at", "comment", "notified",
}
