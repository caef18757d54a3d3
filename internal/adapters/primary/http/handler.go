package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/primary/auth"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

const (
	ownProfile     = "me"
	maxUploadBytes = 64 << 20
)

type Handler struct {
	profiles ports.ProfileService
	catalog  ports.CatalogService
	// waitTimeout bounds ?wait=true requests.
	waitTimeout time.Duration
}

func NewHandler(profiles ports.ProfileService, catalog ports.CatalogService, waitTimeout time.Duration) *Handler {
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	return &Handler{profiles: profiles, catalog: catalog, waitTimeout: waitTimeout}
}

// Router mounts every route on a gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)

	p := r.PathPrefix("/profiles/{profile}").Subrouter()
	p.HandleFunc("", h.openProfile).Methods(http.MethodGet)
	p.HandleFunc("/refresh", h.refreshProfile).Methods(http.MethodPost)
	p.HandleFunc("/session", h.closeProfile).Methods(http.MethodDelete)
	p.HandleFunc("/posts", h.createPost).Methods(http.MethodPost)
	p.HandleFunc("/posts/{post}", h.getPost).Methods(http.MethodGet)
	p.HandleFunc("/posts/{post}", h.deletePost).Methods(http.MethodDelete)
	p.HandleFunc("/posts/{post}/likes", h.likedUsers).Methods(http.MethodGet)
	p.HandleFunc("/posts/{post}/like", h.toggleLike).Methods(http.MethodPost)
	p.HandleFunc("/posts/{post}/comments", h.addComment).Methods(http.MethodPost)
	p.HandleFunc("/posts/{post}/comments/{comment}", h.deleteComment).Methods(http.MethodDelete)

	r.HandleFunc("/products/{product}", h.productDetails).Methods(http.MethodGet)
	return r
}

// --- PROFILES ---

func (h *Handler) openProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Open(r.Context(), sessionKey(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) refreshProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Refresh(r.Context(), sessionKey(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) closeProfile(w http.ResponseWriter, r *http.Request) {
	h.profiles.Close(sessionKey(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.profiles.Post(sessionKey(r), mux.Vars(r)["post"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *Handler) likedUsers(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	users, total, err := h.profiles.LikedUsers(sessionKey(r), mux.Vars(r)["post"], page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":   users,
		"total":   total,
		"hasMore": len(users) < total,
	})
}

// --- MUTATIONS ---

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	p, err := h.profiles.ToggleLike(r.Context(), key, mux.Vars(r)["post"])
	h.respondMutation(w, r, key, p, err)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	key := sessionKey(r)
	p, err := h.profiles.AddComment(r.Context(), key, mux.Vars(r)["post"], req.Text)
	h.respondMutation(w, r, key, p, err)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := sessionKey(r)
	p, err := h.profiles.DeleteComment(r.Context(), key, vars["post"], vars["comment"])
	h.respondMutation(w, r, key, p, err)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	p, err := h.profiles.DeletePost(r.Context(), key, mux.Vars(r)["post"])
	h.respondMutation(w, r, key, p, err)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	payload := domain.NewPost{Text: r.FormValue("text")}

	var err error
	if payload.Images, err = uploads(r, "images"); err != nil {
		http.Error(w, "Invalid image upload", http.StatusBadRequest)
		return
	}
	if payload.Videos, err = uploads(r, "videos"); err != nil {
		http.Error(w, "Invalid video upload", http.StatusBadRequest)
		return
	}

	post, err := h.profiles.CreatePost(r.Context(), sessionKey(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// respondMutation answers 202 with the optimistic snapshot, or waits for the
// outcome when the client asks for ?wait=true.
func (h *Handler) respondMutation(w http.ResponseWriter, r *http.Request, key ports.SessionKey, p ports.Pending, err error) {
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
		defer cancel()
		if err := p.Wait(ctx); err != nil {
			writeError(w, err)
			return
		}
		status = http.StatusOK
	}

	snapshot, err := h.profiles.Snapshot(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"mutationId": p.ID(),
		"profile":    snapshot,
	})
}

// --- CATALOG ---

func (h *Handler) productDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.catalog.ProductDetails(r.Context(), mux.Vars(r)["product"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// --- HELPERS ---

func sessionKey(r *http.Request) ports.SessionKey {
	profile := mux.Vars(r)["profile"]
	if profile == ownProfile {
		profile = ""
	}
	return ports.SessionKey{Viewer: auth.ForContext(r.Context()), Profile: profile}
}

func uploads(r *http.Request, field string) ([]domain.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	out := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPostNotFound),
		errors.Is(err, domain.ErrCommentNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyComment), errors.Is(err, domain.ErrEmptyPost):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRemote), errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
