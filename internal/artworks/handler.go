package artworks

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artmarket/backend/internal/domain"
)

type Handler struct {
	repo   *ArtworkRepository
	logger *slog.Logger
}

func NewHandler(repo *ArtworkRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var artwork domain.Artwork
	if err := json.NewDecoder(r.Body).Decode(&artwork); err != nil || artwork.Title == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if artwork.Price < 0 {
		h.writeError(w, http.StatusBadRequest, "price cannot be negative")
		return
	}

	if err := h.repo.Create(r.Context(), &artwork); err != nil {
		h.logger.Error("failed to create artwork", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("artwork created", "artwork_id", artwork.ID, "title", artwork.Title)
	h.writeJSON(w, http.StatusCreated, artwork)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing artwork id")
		return
	}

	artwork, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		h.logger.Error("failed to get artwork", "error", err, "artwork_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, artwork)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	artworks, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list artworks", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, artworks)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing artwork id")
		return
	}

	var artwork domain.Artwork
	if err := json.NewDecoder(r.Body).Decode(&artwork); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if artwork.Price < 0 {
		h.writeError(w, http.StatusBadRequest, "price cannot be negative")
		return
	}
	artwork.ID = id

	if err := h.repo.Update(r.Context(), &artwork); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		h.logger.Error("failed to update artwork", "error", err, "artwork_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("artwork updated", "artwork_id", id)
	h.writeJSON(w, http.StatusOK, artwork)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing artwork id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		h.logger.Error("failed to delete artwork", "error", err, "artwork_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("artwork deleted", "artwork_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
