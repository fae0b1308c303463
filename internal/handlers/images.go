package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/petermazzocco/ai-image-studio/internal/auth"
	"github.com/petermazzocco/ai-image-studio/internal/gallery"
	"github.com/petermazzocco/ai-image-studio/internal/generator"
	"github.com/petermazzocco/ai-image-studio/models"
)

type galleryResponse struct {
	Images           []models.SavedImage `json:"images"`
	Active           string              `json:"active,omitempty"`
	Image            *models.SavedImage  `json:"image,omitempty"`
	Removed          *bool               `json:"removed,omitempty"`
	PersistenceError string              `json:"persistence_error,omitempty"`
}

func persistenceMessage(err error) string {
	if errors.Is(err, gallery.ErrPersistence) {
		return "Your gallery could not be saved; changes will be lost on reload"
	}
	return ""
}

// galleryError maps store failures that left the gallery untouched.
func (h *Handlers) galleryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gallery.ErrLoad):
		writeError(w, http.StatusServiceUnavailable, "Your gallery is temporarily unavailable")
	case errors.Is(err, gallery.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "Prompt is required")
	default:
		writeError(w, http.StatusInternalServerError, "Gallery update failed")
	}
}

func (h *Handlers) ListImagesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	writeJSON(w, http.StatusOK, galleryResponse{
		Images: h.store.List(r.Context(), user.ID),
		Active: h.sessions.ActiveImage(r),
	})
}

func (h *Handlers) GenerateImageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	// One generation per user at a time.
	if err := h.pending.Add(user.ID, struct{}{}, h.timeout); err != nil {
		writeError(w, http.StatusConflict, "A generation is already in progress")
		return
	}
	defer h.pending.Delete(user.ID)

	// The result is recorded even if the client goes away mid-request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	imageURL, err := h.generator.Generate(ctx, body.Prompt)
	if err != nil {
		h.logger.Error("failed to generate image", slog.String("user_id", user.ID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "Failed to generate image")
		return
	}

	images, record, err := h.store.Add(ctx, user.ID, gallery.NewImage{Prompt: body.Prompt, ImageURL: imageURL})
	if err != nil && !errors.Is(err, gallery.ErrPersistence) {
		h.logger.Error("failed to record image", slog.String("user_id", user.ID), slog.Any("error", err))
		h.galleryError(w, err)
		return
	}

	if err := h.sessions.SetActiveImage(w, r, imageURL); err != nil {
		h.logger.Warn("failed to save active image", slog.Any("error", err))
	}

	h.logger.Info("image generated", slog.String("user_id", user.ID), slog.String("image_id", record.ID))
	writeJSON(w, http.StatusCreated, galleryResponse{
		Images:           images,
		Active:           imageURL,
		Image:            &record,
		PersistenceError: persistenceMessage(err),
	})
}

func (h *Handlers) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}
	id := chi.URLParam(r, "id")

	active := h.sessions.ActiveImage(r)
	res, err := h.store.Remove(r.Context(), user.ID, id, active)
	if err != nil && !errors.Is(err, gallery.ErrPersistence) {
		h.logger.Error("failed to remove image", slog.String("user_id", user.ID), slog.Any("error", err))
		h.galleryError(w, err)
		return
	}

	if res.ClearActive {
		active = ""
		if err := h.sessions.SetActiveImage(w, r, ""); err != nil {
			h.logger.Warn("failed to clear active image", slog.Any("error", err))
		}
	}

	removed := res.Removed
	writeJSON(w, http.StatusOK, galleryResponse{
		Images:           res.Images,
		Active:           active,
		Removed:          &removed,
		PersistenceError: persistenceMessage(err),
	})
}

func (h *Handlers) SelectImageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	image, found := h.store.Find(r.Context(), user.ID, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	if err := h.sessions.SetActiveImage(w, r, image.ImageURL); err != nil {
		h.logger.Error("failed to save active image", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active": image.ImageURL,
		"image":  image,
	})
}

func (h *Handlers) DownloadImageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	image, found := h.store.Find(r.Context(), user.ID, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	body, contentType, err := h.downloader.Download(r.Context(), image.ImageURL)
	if err != nil {
		h.logger.Error("download failed", slog.String("image_id", image.ID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "Download failed")
		return
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, h.maxDownload+1))
	if err != nil {
		h.logger.Error("download failed", slog.String("image_id", image.ID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "Download failed")
		return
	}
	if int64(len(data)) > h.maxDownload {
		h.logger.Warn("download too large", slog.String("image_id", image.ID), slog.Int64("limit", h.maxDownload))
		writeError(w, http.StatusBadGateway, "Image is too large to download")
		return
	}

	if h.converter != nil {
		png, err := h.converter.ToPNG(data)
		if err != nil {
			h.logger.Error("conversion failed", slog.String("image_id", image.ID), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "Download failed")
			return
		}
		data, contentType = png, "image/png"
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", generator.Filename(image.Prompt)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
