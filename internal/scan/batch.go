package scan

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/redpencilio/virus-scanner-service/internal/clamav"
	"github.com/redpencilio/virus-scanner-service/internal/delta"
	"github.com/redpencilio/virus-scanner-service/internal/records"
	"github.com/redpencilio/virus-scanner-service/internal/sparql"
)

// BatchConfig tunes the delta-driven orchestrator.
type BatchConfig struct {
	Trigger delta.TriggerPattern
	// Store, when non-nil, persists one analysis record per scanned file.
	// Left nil the batch path only logs and counts classifications.
	Store RecordStore
	Alert AlertFunc
}

// Batch consumes change notifications and scans every newly created physical
// file they reference, one at a time, with per-file failure isolation.
type Batch struct {
	resolver Resolver
	engine   Engine
	cfg      BatchConfig

	deltas   metric.Int64Counter
	scans    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewBatch(resolver Resolver, engine Engine, cfg BatchConfig) *Batch {
	meter := otel.Meter("virus-scanner")
	deltas, _ := meter.Int64Counter("vscan_deltas_total")
	scans, _ := meter.Int64Counter("vscan_files_scanned_total")
	duration, _ := meter.Float64Histogram("vscan_scan_duration_seconds")
	return &Batch{resolver: resolver, engine: engine, cfg: cfg, deltas: deltas, scans: scans, duration: duration}
}

// HandleChanges runs the full pipeline for one notification and returns the
// per-file summary. An empty summary means no physical file matched; that is
// not an error.
func (b *Batch) HandleChanges(ctx context.Context, changes delta.Changes) Summary {
	b.deltas.Add(ctx, 1)
	refs := b.physicalReferences(changes)
	if len(refs) == 0 {
		slog.Debug("no physical files in change notification")
		return Summary{}
	}
	var summary Summary
	for _, uri := range refs {
		started := time.Now().UTC()
		res := classify(ctx, b.resolver, b.engine, uri)
		ended := time.Now().UTC()
		b.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))
		b.duration.Record(ctx, ended.Sub(started).Seconds())
		b.report(ctx, res, started, ended)
		summary.Results = append(summary.Results, res)
	}
	counts := summary.Counts()
	slog.Info("delta scan complete",
		"files", len(summary.Results),
		"clean", counts[OutcomeClean],
		"infected", counts[OutcomeInfected],
		"not_found", counts[OutcomeNotFound],
		"unscannable", counts[OutcomeUnscannable],
		"engine_errors", counts[OutcomeEngineError])
	return summary
}

// physicalReferences filters matched subjects down to storage-scheme
// identifiers and deduplicates them, keeping first-seen order.
func (b *Batch) physicalReferences(changes delta.Changes) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, subject := range changes.SubjectsMatching(b.cfg.Trigger) {
		if !b.resolver.IsPhysical(subject) {
			continue
		}
		if !sparql.ValidIRI(subject) {
			slog.Warn("skipping malformed file identifier", "subject", subject)
			continue
		}
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		refs = append(refs, subject)
	}
	return refs
}

func (b *Batch) report(ctx context.Context, res FileResult, started, ended time.Time) {
	switch res.Outcome {
	case OutcomeInfected:
		slog.Warn("infected file detected", "file", res.URI, "signatures", res.Signatures)
		if b.cfg.Alert != nil {
			b.cfg.Alert(ctx, res)
		}
	case OutcomeEngineError:
		slog.Error("scan engine failure", "file", res.URI, "error", res.Err)
	case OutcomeNotFound:
		slog.Warn("file not present on disk", "file", res.URI, "path", res.Path)
	}
	if b.cfg.Store == nil {
		return
	}
	rec := records.New(res.URI, started, ended, res.Outcome.AnalysisResult(), res.Signatures)
	if _, err := b.cfg.Store.Persist(ctx, rec); err != nil {
		// batch persistence is best effort; siblings still get scanned
		slog.Error("persisting batch analysis record failed", "file", res.URI, "error", err)
	}
}

// classify stats and scans one file. Every failure is caught here and mapped
// to an outcome so a single bad file never aborts its siblings.
func classify(ctx context.Context, resolver Resolver, engine Engine, uri string) FileResult {
	res := FileResult{URI: uri, Path: resolver.PhysicalPath(uri)}
	if _, err := os.Stat(res.Path); err != nil {
		if os.IsNotExist(err) {
			res.Outcome = OutcomeNotFound
			return res
		}
		// present but not statable, e.g. permission denied
		res.Outcome = OutcomeUnscannable
		res.Err = err
		return res
	}
	reply, err := engine.Scan(ctx, res.Path)
	if err != nil {
		res.Outcome = OutcomeEngineError
		res.Err = err
		return res
	}
	switch reply.Status {
	case clamav.StatusClean:
		res.Outcome = OutcomeClean
	case clamav.StatusInfected:
		res.Outcome = OutcomeInfected
		res.Signatures = reply.Signatures
	default:
		res.Outcome = OutcomeUnscannable
	}
	return res
}
