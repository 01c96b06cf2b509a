package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"visitorgate/auth"
)

type AuthHandler struct {
	admin      auth.Admin
	jwtManager *auth.JWTManager
	logger     *zap.Logger
}

func NewAuthHandler(admin auth.Admin, jwtManager *auth.JWTManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		admin:      admin,
		jwtManager: jwtManager,
		logger:     logger.Named("auth"),
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges the admin password for a console token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := h.admin.Authenticate(req.Username, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("password check failed", zap.Error(err))
		}
		h.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := h.jwtManager.GenerateToken(req.Username, auth.RoleAdmin)
	if err != nil {
		h.logger.Error("failed to generate token", zap.String("username", req.Username), zap.Error(err))
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("admin logged in", zap.String("username", req.Username))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		Role:      auth.RoleAdmin,
		ExpiresAt: time.Now().Add(h.jwtManager.Expiration()),
	})
}
