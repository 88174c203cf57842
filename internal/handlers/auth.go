package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

// Signup creates an API account
// @Summary Create account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body models.SignupRequest true "Credentials"
// @Success 201 {object} models.MessageResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Signup(r.Context(), req)
	if errors.Is(err, logic.ErrUserExists) {
		h.errorResponse(w, http.StatusConflict, "Username already exists")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to create user", "username", req.Username, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.logger.Infow("User created", "username", user.Username, "disabled", user.Disabled)
	h.jsonResponse(w, http.StatusCreated, models.MessageResponse{
		Message: fmt.Sprintf("User %s created successfully", user.Username),
	})
}

// Login exchanges credentials for a bearer token. Accepts a JSON body or an
// OAuth2 password form.
// @Summary Log in
// @Tags Auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param body body models.LoginRequest true "Credentials"
// @Success 200 {object} models.TokenResponse
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		if err := r.ParseForm(); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "Invalid form")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := h.decodeJSON(w, r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, logic.ErrInvalidCredentials) {
		h.logger.Warnw("Failed login", "username", req.Username)
		h.unauthorized(w, "Incorrect username or password")
		return
	}
	if err != nil {
		h.logger.Errorw("Login failed", "username", req.Username, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.jsonResponse(w, http.StatusOK, tok)
}

// Me returns the authenticated user
// @Summary Current user
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} map[string]string
// @Router /users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, userFromContext(r.Context()))
}

func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}
