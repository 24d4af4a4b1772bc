package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redpencilio/virus-scanner-service/internal/clamav"
	"github.com/redpencilio/virus-scanner-service/internal/delta"
	"github.com/redpencilio/virus-scanner-service/internal/records"
)

var testTrigger = delta.TriggerPattern{
	Predicate: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
	Object:    "http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#FileDataObject",
}

type stubResolver struct {
	root     string
	physical string
	err      error
}

func (s stubResolver) IsPhysical(iri string) bool { return strings.HasPrefix(iri, "share://") }

func (s stubResolver) PhysicalPath(iri string) string {
	if !s.IsPhysical(iri) {
		return iri
	}
	return filepath.Join(s.root, strings.TrimPrefix(iri, "share://"))
}

func (s stubResolver) ResolvePhysical(_ context.Context, _ string) (string, error) {
	return s.physical, s.err
}

type stubEngine struct {
	calls []string
	fn    func(path string) (clamav.Result, error)
}

func (e *stubEngine) Scan(_ context.Context, path string) (clamav.Result, error) {
	e.calls = append(e.calls, path)
	if e.fn == nil {
		return clamav.Result{Status: clamav.StatusClean}, nil
	}
	return e.fn(path)
}

type stubStore struct {
	recs []*records.AnalysisRecord
	err  error
}

func (s *stubStore) Persist(_ context.Context, rec *records.AnalysisRecord) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.recs = append(s.recs, rec)
	return []byte("ok"), nil
}

func fileChanges(subjects ...string) delta.Changes {
	cs := delta.ChangeSet{}
	for _, s := range subjects {
		cs.Inserts = append(cs.Inserts, delta.Triple{
			Subject:   delta.Term{Type: "uri", Value: s},
			Predicate: delta.Term{Type: "uri", Value: testTrigger.Predicate},
			Object:    delta.Term{Type: "uri", Value: testTrigger.Object},
		})
	}
	return delta.Changes{cs}
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBatchEmptyNotificationIsNoOp(t *testing.T) {
	engine := &stubEngine{}
	b := NewBatch(stubResolver{root: t.TempDir()}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), delta.Changes{})
	if !summary.Empty() {
		t.Fatalf("expected empty summary")
	}
	if len(engine.calls) != 0 {
		t.Fatalf("no scan must be attempted, got %v", engine.calls)
	}
}

func TestBatchFiltersNonPhysicalAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	engine := &stubEngine{}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), fileChanges(
		"share://a.pdf",
		"share://a.pdf",
		"http://example.org/files/123",
	))
	if len(summary.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(summary.Results))
	}
	if len(engine.calls) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(engine.calls))
	}
}

func TestBatchMissingFileSkipsScan(t *testing.T) {
	engine := &stubEngine{}
	b := NewBatch(stubResolver{root: t.TempDir()}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), fileChanges("share://docs/a.pdf"))
	if len(summary.Results) != 1 || summary.Results[0].Outcome != OutcomeNotFound {
		t.Fatalf("expected NotFound, got %+v", summary.Results)
	}
	if len(engine.calls) != 0 {
		t.Fatalf("missing file must not be scanned")
	}
}

func TestBatchSkipsMalformedIdentifiers(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "ok.pdf")
	engine := &stubEngine{}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), fileChanges(
		"share://a b.pdf",
		"share://x> <http://p> <http://o",
		"share://ok.pdf",
	))
	if len(summary.Results) != 1 || summary.Results[0].URI != "share://ok.pdf" {
		t.Fatalf("malformed identifiers must be skipped, got %+v", summary.Results)
	}
}

func TestBatchStatFailureOtherThanAbsenceIsUnscannable(t *testing.T) {
	engine := &stubEngine{}
	b := NewBatch(stubResolver{root: t.TempDir()}, engine, BatchConfig{Trigger: testTrigger})

	// a 300-byte name fails stat with ENAMETOOLONG, not ENOENT
	summary := b.HandleChanges(context.Background(), fileChanges("share://"+strings.Repeat("x", 300)))
	if len(summary.Results) != 1 || summary.Results[0].Outcome != OutcomeUnscannable {
		t.Fatalf("expected Unscannable, got %+v", summary.Results)
	}
	if summary.Results[0].Err == nil {
		t.Fatalf("expected the stat error to be recorded")
	}
	if len(engine.calls) != 0 {
		t.Fatalf("unstatable path must not reach the engine")
	}
}

func TestBatchEngineFailureDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "bad.bin")
	touch(t, dir, "good.pdf")
	engine := &stubEngine{fn: func(path string) (clamav.Result, error) {
		if strings.HasSuffix(path, "bad.bin") {
			return clamav.Result{}, errors.New("engine exploded")
		}
		return clamav.Result{Status: clamav.StatusClean}, nil
	}}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), fileChanges("share://bad.bin", "share://good.pdf"))
	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(summary.Results))
	}
	if summary.Results[0].Outcome != OutcomeEngineError {
		t.Fatalf("expected engine error first, got %v", summary.Results[0].Outcome)
	}
	if summary.Results[1].Outcome != OutcomeClean {
		t.Fatalf("sibling must still be scanned, got %v", summary.Results[1].Outcome)
	}
}

func TestBatchBucketsPartitionOutcomes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "clean.pdf")
	touch(t, dir, "evil.exe")
	touch(t, dir, "opaque.bin")
	touch(t, dir, "broken.doc")
	engine := &stubEngine{fn: func(path string) (clamav.Result, error) {
		switch filepath.Base(path) {
		case "evil.exe":
			return clamav.Result{Status: clamav.StatusInfected, Signatures: []string{"Eicar-Signature"}}, nil
		case "opaque.bin":
			return clamav.Result{Status: clamav.StatusUnknown}, nil
		case "broken.doc":
			return clamav.Result{}, errors.New("engine io")
		}
		return clamav.Result{Status: clamav.StatusClean}, nil
	}}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger})

	summary := b.HandleChanges(context.Background(), fileChanges(
		"share://clean.pdf", "share://evil.exe", "share://opaque.bin", "share://broken.doc", "share://absent.txt",
	))
	counts := summary.Counts()
	want := map[Outcome]int{
		OutcomeClean:       1,
		OutcomeInfected:    1,
		OutcomeUnscannable: 1,
		OutcomeEngineError: 1,
		OutcomeNotFound:    1,
	}
	total := 0
	for outcome, n := range want {
		if counts[outcome] != n {
			t.Fatalf("expected %d %s, got %d", n, outcome, counts[outcome])
		}
		total += counts[outcome]
	}
	if total != len(summary.Results) {
		t.Fatalf("buckets must partition attempted files: %d != %d", total, len(summary.Results))
	}
}

func TestBatchPersistsRecordsWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "evil.exe")
	engine := &stubEngine{fn: func(string) (clamav.Result, error) {
		return clamav.Result{Status: clamav.StatusInfected, Signatures: []string{"Eicar-Signature"}}, nil
	}}
	store := &stubStore{}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger, Store: store})

	b.HandleChanges(context.Background(), fileChanges("share://evil.exe"))
	if len(store.recs) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.recs))
	}
	rec := store.recs[0]
	if rec.SampleRef != "share://evil.exe" {
		t.Fatalf("batch records reference the physical identifier, got %q", rec.SampleRef)
	}
	if rec.Result != records.ResultMalicious {
		t.Fatalf("expected malicious, got %q", rec.Result)
	}
}

func TestBatchPersistFailureDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf")
	touch(t, dir, "b.pdf")
	engine := &stubEngine{}
	store := &stubStore{err: errors.New("store down")}
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{Trigger: testTrigger, Store: store})

	summary := b.HandleChanges(context.Background(), fileChanges("share://a.pdf", "share://b.pdf"))
	if len(summary.Results) != 2 {
		t.Fatalf("expected both files classified, got %d", len(summary.Results))
	}
}

func TestBatchAlertsOnInfection(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "evil.exe")
	engine := &stubEngine{fn: func(string) (clamav.Result, error) {
		return clamav.Result{Status: clamav.StatusInfected, Signatures: []string{"Eicar-Signature"}}, nil
	}}
	var alerted []string
	b := NewBatch(stubResolver{root: dir}, engine, BatchConfig{
		Trigger: testTrigger,
		Alert:   func(_ context.Context, res FileResult) { alerted = append(alerted, res.URI) },
	})

	b.HandleChanges(context.Background(), fileChanges("share://evil.exe"))
	if len(alerted) != 1 || alerted[0] != "share://evil.exe" {
		t.Fatalf("expected one alert for the infected file, got %v", alerted)
	}
}
