package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/classifiers"
	"github.com/nvr-ai/go-classify/models/postprocess"
)

type fakeEngine struct {
	result *postprocess.Classification
	err    error
	calls  atomic.Int64
	last   *images.Image
}

func (f *fakeEngine) Classify(_ context.Context, img *images.Image) (*postprocess.Classification, error) {
	f.calls.Add(1)
	f.last = img
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) ClassifyImage(context.Context, image.Image) (*postprocess.Classification, error) {
	return f.result, f.err
}

func (f *fakeEngine) Info() inference.Info {
	return inference.Info{Model: "mobilenetv2", Classes: 7, PoolSize: 1}
}

func (f *fakeEngine) Stats() inference.Stats {
	return inference.Stats{Total: inference.SessionStats{Inferences: f.calls.Load()}}
}

func (f *fakeEngine) Close() error { return nil }

func testServer(engine inference.Engine, opts Options) *Server {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return New(engine, opts)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", "application/octet-stream")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestPredict(t *testing.T) {
	engine := &fakeEngine{result: &postprocess.Classification{
		Label:      "Tomato___Late_blight",
		Index:      3,
		Confidence: 0.92,
		Top: []postprocess.Score{
			{Index: 3, Label: "Tomato___Late_blight", Confidence: 0.92},
			{Index: 1, Label: "Tomato___healthy", Confidence: 0.05},
		},
	}}
	s := testServer(engine, Options{})

	rec, body := serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Tomato___Late_blight", body["prediction"])
	assert.Equal(t, float64(3), body["class_index"])
	assert.Len(t, body["top"], 2)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	require.NotNil(t, engine.last)
	assert.Equal(t, images.FormatPNG, engine.last.Format)
	assert.Equal(t, 8, engine.last.Width)
	assert.Equal(t, 6, engine.last.Height)
}

func TestPredictNoFilePart(t *testing.T) {
	s := testServer(&fakeEngine{}, Options{})

	rec, body := serve(s, uploadRequest(t, "image", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file part", body["error"])

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec, body = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file part", body["error"])
	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	require.NoError(t, w.WriteField("file", "leaf.png"))
	require.NoError(t, w.Close())
	req = httptest.NewRequest(http.MethodPost, "/predict", &form)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec, body = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file part", body["error"], "a text field named file is not an upload")
}

func TestPredictNoSelectedFile(t *testing.T) {
	engine := &fakeEngine{}
	s := testServer(engine, Options{})

	rec, body := serve(s, uploadRequest(t, "file", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No selected file", body["error"])
	assert.Zero(t, engine.calls.Load())

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	require.NoError(t, w.WriteField("note", "first"))
	part, err := w.CreateFormFile("file", "leaf.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/predict", &form)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec, _ = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other fields before the upload are skipped")
}

func TestPredictTooLarge(t *testing.T) {
	s := testServer(&fakeEngine{}, Options{MaxUploadBytes: 256})

	rec, body := serve(s, uploadRequest(t, "file", "big.png", bytes.Repeat([]byte{1}, 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, body["error"], "256 B")
}

func TestPredictModelNotLoaded(t *testing.T) {
	s := testServer(nil, Options{})

	rec, body := serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Model is not loaded", body["error"])
}

func TestPredictInvalidImage(t *testing.T) {
	engine := &fakeEngine{}
	s := testServer(engine, Options{})

	rec, body := serve(s, uploadRequest(t, "file", "notes.txt", []byte("definitely not an image")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
	assert.Zero(t, engine.calls.Load())

	engine.err = fmt.Errorf("%w: truncated", classifiers.ErrInvalidImage)
	rec, _ = serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictTooManyPixels(t *testing.T) {
	engine := &fakeEngine{}
	s := testServer(engine, Options{MaxImagePixels: 47})

	rec, body := serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "too many pixels")
	assert.Zero(t, engine.calls.Load(), "the header check runs before classification")

	s = testServer(engine, Options{MaxImagePixels: 48})
	rec, _ = serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictEngineErrors(t *testing.T) {
	engine := &fakeEngine{err: errors.New("onnx run failed")}
	s := testServer(engine, Options{})

	rec, body := serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "onnx run failed", body["error"])

	engine.err = inference.ErrPoolClosed
	rec, body = serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Model is not loaded", body["error"])
}

func TestHealth(t *testing.T) {
	rec, body := serve(testServer(&fakeEngine{}, Options{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, float64(7), body["classes"])

	rec, body = serve(testServer(nil, Options{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["model_loaded"])
}

func TestInfo(t *testing.T) {
	rec, body := serve(testServer(&fakeEngine{}, Options{}), httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body, "model")
	assert.Equal(t, "mobilenetv2", body["model"].(map[string]any)["model"])

	rec, _ = serve(testServer(nil, Options{}), httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIndexAndStatic(t *testing.T) {
	s := testServer(nil, Options{})

	rec, _ := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="upload-form"`)

	rec, _ = serve(s, httptest.NewRequest(http.MethodGet, "/static/script.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/predict")

	rec, _ = serve(s, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	engine := &fakeEngine{result: &postprocess.Classification{Label: "Apple___scab"}}
	s := testServer(engine, Options{})

	rec, _ := serve(s, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `classify_http_requests_total{method="POST",path="/predict",status="200"} 1`)
	assert.Contains(t, out, `classify_predictions_total{label="Apple___scab"} 1`)
	assert.Contains(t, out, "classify_model_loaded 1")
	assert.Contains(t, out, "classify_inference_duration_seconds_count 1")
}

func TestRequestIDAndCORS(t *testing.T) {
	s := testServer(nil, Options{CORSOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec, _ := serve(s, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec, _ = serve(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutdown(t *testing.T) {
	s := testServer(nil, Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "10.0 MiB", humanBytes(10<<20))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
}
