// Package scan orchestrates malware scans: batch scans driven by change
// notifications and on-demand scans of a single logical file.
package scan

import (
	"context"

	"github.com/redpencilio/virus-scanner-service/internal/clamav"
	"github.com/redpencilio/virus-scanner-service/internal/records"
)

// Outcome classifies exactly one attempted file.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeClean
	OutcomeInfected
	OutcomeUnscannable
	OutcomeEngineError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeClean:
		return "clean"
	case OutcomeInfected:
		return "infected"
	case OutcomeUnscannable:
		return "unscannable"
	case OutcomeEngineError:
		return "engine_error"
	}
	return "unknown"
}

// AnalysisResult maps a scan outcome onto the persisted result enumeration.
// Everything that prevented a verdict degrades to unknown.
func (o Outcome) AnalysisResult() records.Result {
	switch o {
	case OutcomeClean:
		return records.ResultBenign
	case OutcomeInfected:
		return records.ResultMalicious
	default:
		return records.ResultUnknown
	}
}

// FileResult is the classification of one file.
type FileResult struct {
	URI        string
	Path       string
	Outcome    Outcome
	Signatures []string
	Err        error
}

// Summary aggregates the per-file results of one batch.
type Summary struct {
	Results []FileResult
}

func (s Summary) Empty() bool { return len(s.Results) == 0 }

func (s Summary) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, r := range s.Results {
		counts[r.Outcome]++
	}
	return counts
}

// Engine is the scan daemon as consumed by the orchestrators.
type Engine interface {
	Scan(ctx context.Context, path string) (clamav.Result, error)
}

// Resolver maps identifiers to paths and logical references to physical ones.
type Resolver interface {
	IsPhysical(iri string) bool
	PhysicalPath(iri string) string
	ResolvePhysical(ctx context.Context, logical string) (string, error)
}

// RecordStore persists analysis records.
type RecordStore interface {
	Persist(ctx context.Context, rec *records.AnalysisRecord) ([]byte, error)
}

// AlertFunc is invoked for every infected file, best effort.
type AlertFunc func(ctx context.Context, res FileResult)
