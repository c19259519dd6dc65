package lab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectra-gallery/spectra-playground/models"
)

func TestCreate_RoutesByKind(t *testing.T) {
	var gotPaths []string
	var gotBodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		gotPaths = append(gotPaths, r.URL.Path)
		gotBodies = append(gotBodies, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(context.Background(), Options{BaseURL: srv.URL + "/api/"})
	require.NoError(t, err)

	for _, kind := range []models.TransformKind{models.TransformNeuralMap, models.TransformNode, models.TransformLink} {
		out, err := c.Create(context.Background(), kind, "r1", json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(out))
	}

	assert.Equal(t, []string{
		"/api/lab/neuralmap/create",
		"/api/lab/node/create/r1",
		"/api/lab/link/create/r1",
	}, gotPaths)
	assert.Equal(t, `{"n":1}`, gotBodies[0])
}

func TestCreate_UnknownKind(t *testing.T) {
	c, err := NewHTTPClient(context.Background(), Options{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), "graph", "r1", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCreate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(context.Background(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), models.TransformNeuralMap, "r1", nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "model offline", statusErr.Body)
}

func TestCreate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(context.Background(), Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), models.TransformNode, "r1", nil)
	assert.Error(t, err)
}

func TestCreate_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"lab-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/lab/neuralmap/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer lab-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewHTTPClient(context.Background(), Options{
		BaseURL:      srv.URL,
		ClientID:     "playground",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
	})
	require.NoError(t, err)

	out, err := c.Create(context.Background(), models.TransformNeuralMap, "", nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(out))
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), Options{BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = NewHTTPClient(context.Background(), Options{BaseURL: "http://lab", ClientID: "id"})
	assert.Error(t, err)
}
