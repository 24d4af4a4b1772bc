package sparql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(queryURL, updateURL string) *Client {
	return New(queryURL, updateURL, 2*time.Second, 1, time.Millisecond)
}

func TestQueryParsesBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("query") == "" {
			t.Errorf("missing query form field")
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = w.Write([]byte(`{"head":{"vars":["physical"]},"results":{"bindings":[{"physical":{"type":"uri","value":"share://docs/a.pdf"}}]}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL, srv.URL).Query(context.Background(), "SELECT ?physical WHERE { ?s ?p ?o }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(result.Results.Bindings))
	}
	if got := result.Results.Bindings[0]["physical"].Value; got != "share://docs/a.pdf" {
		t.Fatalf("unexpected binding value %q", got)
	}
}

func TestQueryEndpointErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "virtuoso is unhappy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL, srv.URL).Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }"); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestQueryEndpointUnreachable(t *testing.T) {
	if _, err := testClient("http://127.0.0.1:1", "http://127.0.0.1:1").Query(context.Background(), "SELECT 1"); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestUpdateReturnsAcknowledgment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("update") == "" {
			t.Errorf("missing update form field")
		}
		_, _ = w.Write([]byte("Insert done"))
	}))
	defer srv.Close()

	ack, err := testClient(srv.URL, srv.URL).Update(context.Background(), "INSERT DATA {}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ack) != "Insert done" {
		t.Fatalf("unexpected ack %q", ack)
	}
}

func TestQueryRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL, 2*time.Second, 2, time.Millisecond)
	if _, err := c.Query(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
