// Package handlers exposes the image studio over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/petermazzocco/ai-image-studio/internal/auth"
	"github.com/petermazzocco/ai-image-studio/internal/gallery"
	"github.com/petermazzocco/ai-image-studio/internal/generator"
)

// Downloader re-fetches a generated image.
type Downloader interface {
	Download(ctx context.Context, imageURL string) (io.ReadCloser, string, error)
}

// Converter normalises downloaded bytes to PNG.
type Converter interface {
	ToPNG(data []byte) ([]byte, error)
}

type Deps struct {
	Directory  auth.Directory
	Sessions   *auth.Sessions
	Store      *gallery.Store
	Generator  generator.Generator
	Downloader Downloader
	// Converter is optional; downloads are passed through unchanged without it.
	Converter Converter
	Logger    *slog.Logger
	// GenerationTimeout bounds a single generate call and how long a user's
	// submit stays locked.
	GenerationTimeout time.Duration
}

type Handlers struct {
	directory  auth.Directory
	sessions   *auth.Sessions
	store      *gallery.Store
	generator  generator.Generator
	downloader Downloader
	converter  Converter
	logger     *slog.Logger
	timeout    time.Duration

	// maxDownload caps the bytes read from an image URL.
	maxDownload int64

	// pending holds one entry per user with a generation in flight.
	pending *cache.Cache
}

func New(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.GenerationTimeout <= 0 {
		d.GenerationTimeout = 2 * time.Minute
	}
	return &Handlers{
		directory:   d.Directory,
		sessions:    d.Sessions,
		store:       d.Store,
		generator:   d.Generator,
		downloader:  d.Downloader,
		converter:   d.Converter,
		logger:      d.Logger,
		timeout:     d.GenerationTimeout,
		maxDownload: 32 << 20,
		pending:     cache.New(d.GenerationTimeout, time.Minute),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
