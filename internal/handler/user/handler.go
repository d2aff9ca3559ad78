package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	userservice "github.com/llmgate/llmgate/internal/service/user"
	"github.com/llmgate/llmgate/pkg/utils"
)

// Handler exposes signup and login.
type Handler struct {
	users *userservice.Service
}

// New creates the user handler.
func New(users *userservice.Service) *Handler {
	return &Handler{users: users}
}

// RegisterRoutes mounts the account endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload signupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.users.Signup(r.Context(), payload.Username, payload.Email, payload.Password); err != nil {
		if errors.Is(err, userservice.ErrUserExists) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"message": "Signup successful"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.users.Login(r.Context(), payload.Username, payload.Password); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Login successful"})
}
