package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder_Embed(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// answer out of order to check index mapping
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	defer e.Close()

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "m", gotReq.Model)
	assert.Equal(t, []string{"a", "b"}, gotReq.Input)
	assert.Equal(t, "m", e.ModelName())
	assert.Equal(t, 2, e.Dimensions())
}

func TestHTTPEmbedder_noKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, vec)
}

func TestHTTPEmbedder_errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	_, err = NewHTTPEmbedder(HTTPConfig{})
	assert.Error(t, err)
}

func TestHTTPEmbedder_emptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}
