package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/161043261/ai-agent-go/internal/auth"
	"github.com/161043261/ai-agent-go/internal/domain"
	"github.com/161043261/ai-agent-go/internal/shared"
	"github.com/161043261/ai-agent-go/internal/store"
)

// UserHandler serves registration and login.
type UserHandler struct {
	repo   store.Repository
	tokens *auth.TokenManager
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(repo store.Repository, tokens *auth.TokenManager) *UserHandler {
	return &UserHandler{repo: repo, tokens: tokens}
}

// RegisterRoutes mounts the public user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/user/register", h.register)
	r.Post("/api/user/login", h.login)
}

type registerRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

func (h *UserHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserName == "" || req.Password == "" {
		Fail(w, CodeInvalidParams)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		Fail(w, CodeServerBusy)
		return
	}

	user := &domain.User{
		UserName:     req.UserName,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if shared.IsSQLiteConstraintError(err) {
			Fail(w, CodeUserExists)
			return
		}
		slog.Error("user creation failed", "username", req.UserName, "error", err)
		Fail(w, CodeServerBusy)
		return
	}

	slog.Info("user registered", "username", req.UserName)
	Envelope(w, CodeSuccess, nil)
}

func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserName == "" || req.Password == "" {
		Fail(w, CodeInvalidParams)
		return
	}

	user, err := h.repo.GetUserByUserName(r.Context(), req.UserName)
	if errors.Is(err, store.ErrNotFound) {
		Fail(w, CodeUserNotFound)
		return
	}
	if err != nil {
		slog.Error("user lookup failed", "username", req.UserName, "error", err)
		Fail(w, CodeServerBusy)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		Fail(w, CodeInvalidPassword)
		return
	}

	token, err := h.tokens.Issue(user.UserName)
	if err != nil {
		slog.Error("token issuance failed", "username", req.UserName, "error", err)
		Fail(w, CodeServerBusy)
		return
	}

	Envelope(w, CodeSuccess, map[string]any{
		"token":    token,
		"username": user.UserName,
	})
}
