package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// Root endpoint
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, models.MessageResponse{Message: "Welcome to the NBA prediction API!"})
}

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Check all configured dependencies
	checks := make(map[string]bool, len(h.deps))
	allHealthy := true
	for name, dep := range h.deps {
		ok := dep.Ping(ctx) == nil
		checks[name] = ok
		if !ok {
			allHealthy = false
		}
	}

	queueDepth := 0
	if h.audit != nil {
		queueDepth = h.audit.QueueDepth()
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]interface{}{
		"ready":      allHealthy,
		"checks":     checks,
		"queueDepth": queueDepth,
	})
}

// AuthMiddleware requires a bearer token for an active user.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(header, "bearer ")
		}
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			h.unauthorized(w, "Not authenticated")
			return
		}

		user, err := h.auth.Authenticate(r.Context(), token)
		switch {
		case errors.Is(err, logic.ErrInactiveUser):
			h.errorResponse(w, http.StatusBadRequest, "Inactive user")
			return
		case errors.Is(err, logic.ErrInvalidCredentials):
			h.unauthorized(w, "Could not validate credentials")
			return
		case err != nil:
			h.logger.Errorw("Failed to authenticate request", "error", err)
			h.errorResponse(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext returns the user AuthMiddleware attached to the request.
func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func (h *Handler) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	h.errorResponse(w, http.StatusUnauthorized, message)
}

// decodeJSON reads a size-limited JSON body into dst.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
