package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/classifiers"
)

var (
	errNoFilePart     = errors.New("no file part")
	errNoSelectedFile = errors.New("no selected file")
)

const (
	msgNoFilePart     = "No file part"
	msgNoSelectedFile = "No selected file"
	msgNotLoaded      = "Model is not loaded"
)

func (s *Server) indexHandler(c *gin.Context) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) predictHandler(c *gin.Context) {
	limit := s.opts.MaxUploadBytes
	if c.Request.ContentLength > limit {
		s.tooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	filename, data, err := readUpload(c.Request)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.tooLarge(c)
		case errors.Is(err, errNoSelectedFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoSelectedFile})
		case errors.Is(err, errNoFilePart):
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilePart})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	if s.engine == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotLoaded})
		return
	}

	img, err := images.NewImageWithLimit(data, s.opts.MaxImagePixels)
	if err != nil {
		s.logger.Warn("failed to decode upload",
			slog.String("filename", filename),
			slog.String("request_id", RequestID(c)),
			slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := s.engine.Classify(c.Request.Context(), img)
	if err != nil {
		s.logger.Error("prediction failed",
			slog.String("filename", filename),
			slog.String("request_id", RequestID(c)),
			slog.Any("error", err))
		switch {
		case errors.Is(err, classifiers.ErrInvalidImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, classifiers.ErrNotLoaded), errors.Is(err, inference.ErrPoolClosed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotLoaded})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	took := time.Since(start)
	s.metrics.ObservePrediction(result.Label, took)
	s.opts.Profiler.RecordOperation("classify", took)

	c.JSON(http.StatusOK, result)
}

// readUpload returns the name and bytes of the first "file" part that is a
// file upload. A part without a filename parameter is a plain form field and
// does not count; a filename parameter that is empty means nothing was
// selected.
func readUpload(r *http.Request) (string, []byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, errNoFilePart
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errNoFilePart
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return "", nil, err
			}
			return "", nil, errNoFilePart
		}

		if part.FormName() != "file" {
			part.Close()
			continue
		}
		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			part.Close()
			continue
		}
		if _, ok := params["filename"]; !ok {
			part.Close()
			continue
		}

		filename := part.FileName()
		if filename == "" {
			part.Close()
			return "", nil, errNoSelectedFile
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return "", nil, err
		}
		return filename, data, nil
	}
}

func (s *Server) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": "File too large, the limit is " + humanBytes(s.opts.MaxUploadBytes),
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "model_loaded": false, "classes": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": true, "classes": s.engine.Info().Classes})
}

func (s *Server) infoHandler(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgNotLoaded})
		return
	}
	info := s.engine.Info()
	info.ModelInfo = nil
	c.JSON(http.StatusOK, gin.H{"model": info, "stats": s.engine.Stats()})
}
