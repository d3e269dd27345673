package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

func TestServer_HealthHandler(t *testing.T) {
	server := newTestServer(t, nil, Config{})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{name: "GET request success", method: "GET", expectedStatus: http.StatusOK, checkResponse: true},
		{name: "POST request not allowed", method: "POST", expectedStatus: http.StatusMethodNotAllowed},
		{name: "PUT request not allowed", method: "PUT", expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkResponse {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				require.NotNil(t, response.Build)
				assert.NotEmpty(t, response.Build.GoVersion)
				assert.Equal(t, 6, response.CatalogSize)
				assert.Equal(t, "none", response.Pipeline["recognizer"])
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_HealthHandler_CatalogDown(t *testing.T) {
	server := newTestServer(t, nil, Config{})
	server.catalog = failingSource{}

	w := httptest.NewRecorder()
	server.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "catalog unavailable", response.Error)
}

func TestServer_ResolveCodeHandler(t *testing.T) {
	server := newTestServer(t, nil, Config{})
	mux := newMux(server)

	t.Run("self-describing code resolves exactly", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/code", map[string]string{"payload": applesPayload}))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeResolve(t, w)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.RequestID)
		assert.Equal(t, resp.RequestID, w.Header().Get(requestIDHeader))
		require.NotNil(t, resp.Outcome)
		assert.Equal(t, "exact", resp.Outcome.Result.Kind)
		require.NotNil(t, resp.Outcome.Result.Entity)
		assert.Equal(t, "PROD-00007", resp.Outcome.Result.Entity.ID)
		assert.Empty(t, resp.Outcome.Attempts, "a structured code never triggers OCR")
	})

	t.Run("empty payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/code", map[string]string{"payload": "  "}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResolve(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "No payload provided", resp.Error)
		assert.NotEmpty(t, resp.RequestID)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/resolve/code", strings.NewReader("{"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resolve/code", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		big := strings.Repeat("x", maxJSONBody+1)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/code", map[string]string{"payload": big}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestServer_ResolveTextHandler(t *testing.T) {
	server := newTestServer(t, nil, Config{})
	mux := newMux(server)

	tests := []struct {
		name    string
		text    string
		kind    string
		problem pipeline.ErrorKind
	}{
		{name: "product code in text", text: "PROD-00007 Organic Apples EXP 2026-03-15", kind: "exact"},
		{name: "shared word is a tie", text: "Organic", kind: "ambiguous", problem: pipeline.AmbiguousMatch},
		{name: "unknown product", text: "Blood Oranges LOT 9", kind: "unresolved", problem: pipeline.UnknownProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/text", map[string]string{"text": tt.text}))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decodeResolve(t, w)
			require.NotNil(t, resp.Outcome)
			assert.Equal(t, tt.kind, resp.Outcome.Result.Kind)
			assert.Equal(t, tt.problem, resp.Outcome.Problem)
			if tt.problem == pipeline.UnknownProduct {
				assert.NotNil(t, resp.Outcome.Proposal)
			}
		})
	}

	t.Run("missing text", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/text", map[string]string{"payload": applesPayload}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		down := newTestServer(t, nil, Config{})
		down.catalog = failingSource{}
		w := httptest.NewRecorder()
		newMux(down).ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/text", map[string]string{"text": "Oat Milk"}))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "Catalog unavailable", decodeResolve(t, w).Error)
	})
}

func TestServer_ResolveMixedHandler(t *testing.T) {
	server := newTestServer(t, nil, Config{})
	mux := newMux(server)

	post := func(t *testing.T, body mixedRequest) (*httptest.ResponseRecorder, MixedResponse) {
		t.Helper()
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/resolve/mixed", body))
		var resp MixedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
		return w, resp
	}

	t.Run("distinct secondary product", func(t *testing.T) {
		w, resp := post(t, mixedRequest{
			PalletID:         "PAL-1",
			PalletProductIDs: []string{"PROD-00007", "PROD-00008"},
			Primary:          labelRequest{Payload: applesPayload},
			Secondary:        labelRequest{Text: "PROD-00008 Organic Pears"},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.NeedsSecondPass)
		require.NotNil(t, resp.Mixed)
		assert.Equal(t, "PAL-1", resp.Mixed.PalletID)
		assert.Equal(t, "PROD-00007", resp.Mixed.Primary.Result.Entity.ID)
		assert.Equal(t, "PROD-00008", resp.Mixed.Secondary.Result.Entity.ID)
	})

	t.Run("secondary repeating the primary is flagged", func(t *testing.T) {
		w, resp := post(t, mixedRequest{
			PalletID:  "PAL-2",
			Primary:   labelRequest{Payload: applesPayload},
			Secondary: labelRequest{Text: "PROD-00007 Organic Apples"},
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, resp.Mixed)
		sec := resp.Mixed.Secondary
		assert.Equal(t, "ambiguous", sec.Result.Kind)
		assert.Equal(t, "duplicate_in_mixed_batch", string(sec.Result.Reason))
		assert.Equal(t, pipeline.AmbiguousMatch, sec.Problem)
	})

	t.Run("single product pallet skips second pass", func(t *testing.T) {
		w, resp := post(t, mixedRequest{
			PalletID:         "PAL-3",
			PalletProductIDs: []string{"PROD-00007"},
			Primary:          labelRequest{Payload: applesPayload},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, resp.NeedsSecondPass)
		assert.Nil(t, resp.Mixed)
		require.NotNil(t, resp.Primary)
		assert.Equal(t, "exact", resp.Primary.Result.Kind)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			body mixedRequest
			want string
		}{
			{name: "no pallet", body: mixedRequest{Primary: labelRequest{Text: "x"}}, want: "No pallet_id provided"},
			{name: "no primary", body: mixedRequest{PalletID: "P"}, want: "Primary label is empty"},
			{name: "no secondary", body: mixedRequest{PalletID: "P", Primary: labelRequest{Payload: applesPayload}}, want: "Secondary label is empty"},
			{name: "bad image", body: mixedRequest{PalletID: "P", Primary: labelRequest{Image: []byte("nope")}}, want: "Invalid primary image"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, resp := post(t, tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, tt.want, resp.Error)
			})
		}
	})
}

func TestServer_MetricsRoute(t *testing.T) {
	mux := newMux(newTestServer(t, nil, Config{}))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "labelscan_http_requests_total")
}
