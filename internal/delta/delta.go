// Package delta decodes mu-style change notifications: a JSON array of
// change-sets, each holding inserted and deleted triples.
package delta

import (
	"encoding/json"
	"fmt"
	"io"
)

// Term is one position of a triple as it appears on the wire.
type Term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Triple is an immutable (subject, predicate, object) statement.
type Triple struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
}

// ChangeSet is one batch of insertions and deletions.
type ChangeSet struct {
	Inserts []Triple `json:"inserts"`
	Deletes []Triple `json:"deletes"`
}

// Changes is a full change notification. Only inserts are consumed.
type Changes []ChangeSet

// TriggerPattern matches triples by predicate and object value; the subject
// is a wildcard.
type TriggerPattern struct {
	Predicate string
	Object    string
}

// Decode parses a change notification. Inserted triples missing a predicate
// or object value violate the caller contract and fail the decode.
func Decode(r io.Reader) (Changes, error) {
	var changes Changes
	if err := json.NewDecoder(r).Decode(&changes); err != nil {
		return nil, fmt.Errorf("decode change notification: %w", err)
	}
	for _, cs := range changes {
		for _, t := range cs.Inserts {
			if t.Predicate.Value == "" || t.Object.Value == "" {
				return nil, fmt.Errorf("inserted triple for subject %q is missing predicate or object", t.Subject.Value)
			}
		}
	}
	return changes, nil
}

// Inserts flattens all inserted triples across change-sets.
func (c Changes) Inserts() []Triple {
	var out []Triple
	for _, cs := range c {
		out = append(out, cs.Inserts...)
	}
	return out
}

// SubjectsMatching returns the subject values of inserted triples whose
// predicate and object equal the trigger pattern. Duplicates are preserved;
// callers deduplicate after scheme filtering.
func (c Changes) SubjectsMatching(trigger TriggerPattern) []string {
	var subjects []string
	for _, t := range c.Inserts() {
		if t.Predicate.Value == trigger.Predicate && t.Object.Value == trigger.Object {
			subjects = append(subjects, t.Subject.Value)
		}
	}
	return subjects
}
