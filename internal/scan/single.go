package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/redpencilio/virus-scanner-service/internal/records"
	"github.com/redpencilio/virus-scanner-service/internal/sparql"
)

// Request-validation failures of the on-demand scan path. Both are raised
// before any I/O happens.
var (
	ErrEmptyIdentifier    = errors.New("file identifier is required")
	ErrInvalidIdentifier  = errors.New("file identifier is not a well-formed IRI")
	ErrPhysicalIdentifier = errors.New("expected a logical file identifier, got a physical one")
)

// Single scans one logical file on demand and persists the analysis record.
type Single struct {
	resolver Resolver
	engine   Engine
	store    RecordStore
	alert    AlertFunc

	persisted metric.Int64Counter
	scans     metric.Int64Counter
}

func NewSingle(resolver Resolver, engine Engine, store RecordStore, alert AlertFunc) *Single {
	meter := otel.Meter("virus-scanner")
	persisted, _ := meter.Int64Counter("vscan_records_persisted_total")
	scans, _ := meter.Int64Counter("vscan_single_scans_total")
	return &Single{resolver: resolver, engine: engine, store: store, alert: alert, persisted: persisted, scans: scans}
}

// Scan resolves a logical file identifier, scans its physical counterpart and
// persists a malware-analysis record referencing the logical identifier.
// Engine failures, unscannable files and missing paths degrade the persisted
// result to unknown instead of failing the request; only validation,
// resolution and persistence failures surface as errors. The store's raw
// acknowledgment is returned alongside the record.
func (s *Single) Scan(ctx context.Context, logical string) (*records.AnalysisRecord, []byte, error) {
	if logical == "" {
		return nil, nil, ErrEmptyIdentifier
	}
	if !sparql.ValidIRI(logical) {
		return nil, nil, ErrInvalidIdentifier
	}
	if s.resolver.IsPhysical(logical) {
		return nil, nil, ErrPhysicalIdentifier
	}
	physical, err := s.resolver.ResolvePhysical(ctx, logical)
	if err != nil {
		return nil, nil, err
	}
	started := time.Now().UTC()
	res := classify(ctx, s.resolver, s.engine, physical)
	ended := time.Now().UTC()
	s.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))
	if res.Outcome == OutcomeInfected {
		slog.Warn("infected file detected", "file", logical, "physical", physical, "signatures", res.Signatures)
		if s.alert != nil {
			s.alert(ctx, res)
		}
	}
	rec := records.New(logical, started, ended, res.Outcome.AnalysisResult(), res.Signatures)
	ack, err := s.store.Persist(ctx, rec)
	if err != nil {
		return nil, nil, fmt.Errorf("store analysis record: %w", err)
	}
	s.persisted.Add(ctx, 1)
	return rec, ack, nil
}
