// Package records models malware-analysis records and persists them into the
// knowledge store.
package records

import (
	"time"

	"github.com/google/uuid"
)

// Result is the analysis outcome enumeration persisted with each record.
type Result string

const (
	ResultMalicious  Result = "malicious"
	ResultSuspicious Result = "suspicious"
	ResultBenign     Result = "benign"
	ResultUnknown    Result = "unknown"
)

const recordURIBase = "http://redpencil.data.gift/id/malware-analyses/"

// AnalysisRecord is the standardized result of one scan. It is created in
// memory per scan, persisted once, and never mutated afterwards.
type AnalysisRecord struct {
	ID              string    `json:"id"`
	URI             string    `json:"uri"`
	SampleRef       string    `json:"sample"`
	AnalysisStarted time.Time `json:"analysisStarted"`
	AnalysisEnded   time.Time `json:"analysisEnded"`
	Result          Result    `json:"result"`
	Signatures      []string  `json:"signatures,omitempty"`
}

// New builds a record with a freshly generated identifier. Repeated scans of
// the same sample produce independent records.
func New(sampleRef string, started, ended time.Time, result Result, signatures []string) *AnalysisRecord {
	id := uuid.NewString()
	return &AnalysisRecord{
		ID:              id,
		URI:             recordURIBase + id,
		SampleRef:       sampleRef,
		AnalysisStarted: started,
		AnalysisEnded:   ended,
		Result:          result,
		Signatures:      signatures,
	}
}
