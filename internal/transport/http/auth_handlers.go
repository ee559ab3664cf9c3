package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/auth"
	"quizbattle-service/internal/domain"
)

// AuthHandler covers the thin account surface: register and login.
type AuthHandler struct {
	users  app.UserStore
	tokens *auth.Tokens
}

func NewAuthHandler(users app.UserStore, tokens *auth.Tokens) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "fill all fields"})
		return
	}
	if len(req.Password) < 6 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "password too short"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, domain.ErrInvalidCredentials)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, r, domain.ErrInvalidCredentials)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}
