package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markbates/goth/gothic"
	"github.com/petermazzocco/ai-image-studio/internal/auth"
	"github.com/petermazzocco/ai-image-studio/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return credentials{}, err
	}
	return c, nil
}

// identityError writes an identity failure. AuthError messages are shown as is.
func (h *Handlers) identityError(w http.ResponseWriter, err error) {
	var aerr *auth.AuthError
	if errors.As(err, &aerr) {
		writeError(w, http.StatusBadRequest, aerr.Error())
		return
	}
	h.logger.Error("identity provider failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "Authentication service unavailable")
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user models.User) bool {
	// A new identity always starts from what is persisted for it.
	h.store.Discard(user.ID)
	if err := h.sessions.SignIn(w, r, auth.Identity{ID: user.ID, Email: user.Email}); err != nil {
		h.logger.Error("failed to save session", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return false
	}
	return true
}

func (h *Handlers) SignUpHandler(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.directory.SignUp(r.Context(), c.Email, c.Password)
	if err != nil {
		h.identityError(w, err)
		return
	}

	h.logger.Info("account created", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Account created! Please log in.",
		"id":      user.ID,
	})
}

func (h *Handlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.directory.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		h.identityError(w, err)
		return
	}
	if !h.startSession(w, r, user) {
		return
	}

	writeJSON(w, http.StatusOK, auth.Identity{ID: user.ID, Email: user.Email})
}

func (h *Handlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if user, ok := h.sessions.Identity(r); ok {
		h.store.Discard(user.ID)
	}
	gothic.Logout(w, r)
	if err := h.sessions.SignOut(w, r); err != nil {
		h.logger.Error("failed to clear session", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withProvider hands the chi route param to gothic.
func withProvider(r *http.Request) *http.Request {
	return gothic.GetContextWithProvider(r, chi.URLParam(r, "provider"))
}

func (h *Handlers) BeginProviderAuthHandler(w http.ResponseWriter, r *http.Request) {
	r = withProvider(r)
	if gothUser, err := gothic.CompleteUserAuth(w, r); err == nil {
		user, err := h.directory.FromProvider(r.Context(), gothUser)
		if err != nil {
			h.identityError(w, err)
			return
		}
		if h.startSession(w, r, user) {
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		}
		return
	}
	gothic.BeginAuthHandler(w, r)
}

func (h *Handlers) ProviderCallbackHandler(w http.ResponseWriter, r *http.Request) {
	r = withProvider(r)
	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.logger.Warn("oauth callback failed", slog.Any("error", err))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := h.directory.FromProvider(r.Context(), gothUser)
	if err != nil {
		h.identityError(w, err)
		return
	}
	if !h.startSession(w, r, user) {
		return
	}

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (h *Handlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not Authorized")
		return
	}

	user, err := h.directory.ByID(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("user lookup failed", slog.String("user_id", id.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "User lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
