package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redpencilio/virus-scanner-service/internal/rdf"
	"github.com/redpencilio/virus-scanner-service/internal/sparql"
)

// Store persists analysis records with a single conditional insert.
type Store struct {
	store *sparql.Client
}

func NewStore(c *sparql.Client) *Store {
	return &Store{store: c}
}

// Persist inserts the record's triples into every graph that asserts the
// sample is a file entity. When no graph does, the update inserts nothing and
// the empty acknowledgment is returned as-is; that is not an error.
func (s *Store) Persist(ctx context.Context, rec *AnalysisRecord) ([]byte, error) {
	if !sparql.ValidIRI(rec.SampleRef) {
		return nil, fmt.Errorf("analysis record %s: sample %q is not a well-formed IRI", rec.ID, rec.SampleRef)
	}
	ack, err := s.store.Update(ctx, buildInsert(rec))
	if err != nil {
		return nil, fmt.Errorf("persist analysis record %s: %w", rec.ID, err)
	}
	return ack, nil
}

func buildInsert(rec *AnalysisRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT {\n  GRAPH ?g {\n")
	fmt.Fprintf(&b, "    <%s> <%s> <%s> ;\n", rec.URI, rdf.Type, rdf.MalwareAnalysis)
	fmt.Fprintf(&b, "      <%s> %s ;\n", rdf.MuUUID, literal(rec.ID))
	fmt.Fprintf(&b, "      <%s> %s ;\n", rdf.AnalysisStarted, dateTime(rec.AnalysisStarted))
	fmt.Fprintf(&b, "      <%s> %s ;\n", rdf.AnalysisEnded, dateTime(rec.AnalysisEnded))
	fmt.Fprintf(&b, "      <%s> %s ;\n", rdf.AnalysisResult, literal(string(rec.Result)))
	fmt.Fprintf(&b, "      <%s> <%s> .\n", rdf.AnalysisSample, rec.SampleRef)
	for _, sig := range rec.Signatures {
		fmt.Fprintf(&b, "    <%s> <%s> %s .\n", rec.URI, rdf.SignatureName, literal(sig))
	}
	fmt.Fprintf(&b, "  }\n}\nWHERE {\n  GRAPH ?g {\n    <%s> <%s> <%s> .\n  }\n}",
		rec.SampleRef, rdf.Type, rdf.FileDataObject)
	return b.String()
}

func dateTime(t time.Time) string {
	return fmt.Sprintf("%s^^<%s>", literal(t.UTC().Format(time.RFC3339)), rdf.XSDDateTime)
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}
