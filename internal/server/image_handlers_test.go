package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

func TestServer_ResolveImageHandler(t *testing.T) {
	server := newTestServer(t, fixedText(applesLabel), Config{})
	mux := newMux(server)

	t.Run("label photo resolves through OCR", func(t *testing.T) {
		req := multipartRequest(t, "/resolve/image", []upload{{"image", "label.png", labelPNG(t, "Organic Apples")}}, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeResolve(t, w)
		require.NotNil(t, resp.Outcome)
		assert.Equal(t, "exact", resp.Outcome.Result.Kind)
		assert.Equal(t, "PROD-00007", resp.Outcome.Result.Entity.ID)
		require.NotNil(t, resp.Outcome.Attempt)
		assert.Equal(t, applesLabel, resp.Outcome.Attempt.RawText)
		assert.Equal(t, "A-100", resp.Outcome.Extracted.BatchCode)
	})

	t.Run("client decoded payload wins", func(t *testing.T) {
		fields := map[string]string{"payload": "PALLET:prod-00008"}
		req := multipartRequest(t, "/resolve/image", []upload{{"image", "label.png", labelPNG(t, "x")}}, fields)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResolve(t, w)
		assert.Equal(t, "PROD-00008", resp.Outcome.Result.Entity.ID)
		assert.Empty(t, resp.Outcome.Attempts)
	})

	t.Run("no file", func(t *testing.T) {
		req := multipartRequest(t, "/resolve/image", nil, map[string]string{"payload": applesPayload})
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No image file provided", decodeResolve(t, w).Error)
	})

	t.Run("not an image", func(t *testing.T) {
		req := multipartRequest(t, "/resolve/image", []upload{{"image", "label.png", []byte("not an image")}}, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid image format", decodeResolve(t, w).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resolve/image", bytes.NewReader([]byte("x"))))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_ResolveImageHandler_TooLarge(t *testing.T) {
	server := newTestServer(t, fixedText(applesLabel), Config{MaxUploadMB: 1})

	big := make([]byte, 2*1024*1024)
	req := multipartRequest(t, "/resolve/image", []upload{{"image", "big.png", big}}, nil)
	w := httptest.NewRecorder()
	newMux(server).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_ResolveImageHandler_NoRecognizer(t *testing.T) {
	server := newTestServer(t, nil, Config{})

	req := multipartRequest(t, "/resolve/image", []upload{{"image", "label.png", labelPNG(t, "Oat Milk")}}, nil)
	w := httptest.NewRecorder()
	newMux(server).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResolve(t, w)
	assert.Equal(t, "unresolved", resp.Outcome.Result.Kind)
	assert.Equal(t, "recognition_unavailable", string(resp.Outcome.Problem))
}

func TestServer_ResolveBatchHandler(t *testing.T) {
	server := newTestServer(t, fixedText(applesLabel), Config{})
	mux := newMux(server)

	files := []upload{
		{"images", "one.png", labelPNG(t, "one")},
		{"images", "two.png", labelPNG(t, "two")},
		{"images", "three.png", labelPNG(t, "three")},
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, multipartRequest(t, "/resolve/batch", files, nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 3)
	for i, name := range []string{"one.png", "two.png", "three.png"} {
		assert.Equal(t, name, resp.Results[i].Name, "results keep upload order")
		assert.Equal(t, "exact", resp.Results[i].Outcome.Result.Kind)
	}
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 3, resp.Stats.Total)
	assert.Equal(t, 3, resp.Stats.Resolved)
	assert.Equal(t, 2, resp.Stats.WorkerCount)

	t.Run("empty batch", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/batch", nil, map[string]string{"x": "y"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("one bad image fails the batch", func(t *testing.T) {
		bad := append(files[:1:1], upload{"images", "bad.png", []byte("junk")})
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/batch", bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_ResolvePDFHandler(t *testing.T) {
	server := newTestServer(t, fixedText(applesLabel), Config{})
	mux := newMux(server)

	t.Run("no file", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/pdf", nil, map[string]string{"pages": "1"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No PDF file provided", decodeResolve(t, w).Error)
	})

	t.Run("not a pdf", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/pdf", []upload{{"pdf", "x.pdf", []byte("hello")}}, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("label sheet", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping pdfcpu round trip in short mode")
		}
		dir := t.TempDir()
		first := testutil.WriteLabelPNG(t, dir, "first.png", []string{"Organic Apples"})
		second := testutil.WriteLabelPNG(t, dir, "second.png", []string{"Organic Apples"})
		sheet := filepath.Join(dir, "sheet.pdf")
		require.NoError(t, api.ImportImagesFile([]string{first, second}, sheet, nil, nil))
		data, err := os.ReadFile(sheet) //nolint:gosec // test fixture
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/pdf", []upload{{"pdf", "sheet.pdf", data}}, nil))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp BatchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, 1, resp.Results[0].Page)
		assert.Equal(t, 2, resp.Results[1].Page)
		assert.Equal(t, "PROD-00007", resp.Results[1].Outcome.Result.Entity.ID)

		w = httptest.NewRecorder()
		fields := map[string]string{"pages": "2"}
		mux.ServeHTTP(w, multipartRequest(t, "/resolve/pdf", []upload{{"pdf", "sheet.pdf", data}}, fields))
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, 2, resp.Results[0].Page)
	})
}
