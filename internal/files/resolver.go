// Package files resolves file identifiers: share://-scheme IRIs map onto the
// local mount by prefix substitution, and logical file IRIs resolve to their
// physical counterpart through the knowledge store.
package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/redpencilio/virus-scanner-service/internal/rdf"
	"github.com/redpencilio/virus-scanner-service/internal/sparql"
)

// ErrNoPhysicalFile means the knowledge store holds no physical file for the
// given logical identifier. Distinct from transport failures.
var ErrNoPhysicalFile = errors.New("no physical file found for logical identifier")

// Resolver maps file identifiers to local paths and logical identifiers to
// physical ones.
type Resolver struct {
	store     *sparql.Client
	scheme    string // storage-scheme prefix, e.g. "share://"
	mountRoot string // local mount of the storage scheme, e.g. "/share"
}

func NewResolver(store *sparql.Client, scheme, mountRoot string) *Resolver {
	return &Resolver{
		store:     store,
		scheme:    scheme,
		mountRoot: strings.TrimSuffix(mountRoot, "/"),
	}
}

// IsPhysical reports whether the identifier uses the storage-scheme prefix.
func (r *Resolver) IsPhysical(iri string) bool {
	return strings.HasPrefix(iri, r.scheme)
}

// PhysicalPath substitutes the storage-scheme prefix with the mount root.
// Pure and total: identifiers without the prefix (including already-resolved
// paths) pass through unchanged.
func (r *Resolver) PhysicalPath(iri string) string {
	if !r.IsPhysical(iri) {
		return iri
	}
	return path.Join(r.mountRoot, strings.TrimPrefix(iri, r.scheme))
}

// ResolvePhysical looks up the physical file derived from a logical file IRI.
// Returns ErrNoPhysicalFile when no graph asserts the relation. When several
// graphs assert one, the first binding wins; the relation is assumed to be
// functional and ambiguity is only logged.
func (r *Resolver) ResolvePhysical(ctx context.Context, logical string) (string, error) {
	if !sparql.ValidIRI(logical) {
		return "", fmt.Errorf("logical identifier %q is not a well-formed IRI", logical)
	}
	query := fmt.Sprintf(`SELECT ?physical WHERE {
  GRAPH ?g {
    ?physical <%s> <%s> .
  }
}`, rdf.DataSource, logical)
	result, err := r.store.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("resolve physical file: %w", err)
	}
	bindings := result.Results.Bindings
	if len(bindings) == 0 {
		return "", ErrNoPhysicalFile
	}
	if len(bindings) > 1 {
		slog.Warn("multiple physical files for logical identifier, taking first",
			"logical", logical, "count", len(bindings))
	}
	physical, ok := bindings[0]["physical"]
	if !ok || physical.Value == "" {
		return "", ErrNoPhysicalFile
	}
	return physical.Value, nil
}
