package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank_ParsesResults(t *testing.T) {
	var gotAuth string
	var gotBody rerankRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":{"results":[{"index":1,"relevance_score":0.91},{"index":0,"relevance_score":0.42}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	results, err := client.Rerank(context.Background(), "shopping list", []string{"kickoff notes", "buy milk"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, DefaultModel, gotBody.Model)
	assert.Equal(t, "shopping list", gotBody.Input.Query)
	assert.Equal(t, []string{"kickoff notes", "buy milk"}, gotBody.Input.Documents)

	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.InDelta(t, 0.91, results[0].RelevanceScore, 1e-9)
}

func TestRerank_EmptyDocuments(t *testing.T) {
	client := NewClient("http://unused.invalid", "secret")
	results, err := client.Rerank(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRerank_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":{"results":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	results, err := client.Rerank(context.Background(), "query", []string{"doc"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRerank_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	_, err := client.Rerank(context.Background(), "query", []string{"doc"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestRerank_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	_, err := client.Rerank(context.Background(), "query", []string{"doc"})
	assert.Error(t, err)
}

func TestRerank_IndexOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":{"results":[{"index":5,"relevance_score":0.9}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	_, err := client.Rerank(context.Background(), "query", []string{"doc"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
