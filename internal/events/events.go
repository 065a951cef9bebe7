// Package events publishes import completions to Kafka and turns import
// requests read from Kafka into manager fetches.
package events

import (
	"time"

	"github.com/robso86/jsonschema-mapper/internal/importer"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ImportEvent describes one completed import.
type ImportEvent struct {
	ImportID    string          `json:"import_id"`
	URI         string          `json:"uri"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Properties  int             `json:"properties"`
	Definitions int             `json:"definitions"`
	IDs         int             `json:"ids"`
	DurationMs  int64           `json:"duration_ms"`
	CompletedAt time.Time       `json:"completed_at"`
	Model       *importer.Model `json:"model,omitempty"`
}

// ImportRequest asks the service to fetch and import the document at URI.
type ImportRequest struct {
	URI       string `json:"uri"`
	RequestID string `json:"request_id,omitempty"`
}
