package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/langcham/mapquiz/internal/identity"
	"github.com/langcham/mapquiz/internal/progress"
)

type SignUpRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2"`
	LastName  string `json:"lastName" validate:"required,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,strongpassword"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// AuthResponse carries the bearer token for subsequent requests.
type AuthResponse struct {
	Token string        `json:"token"`
	User  identity.User `json:"user"`
}

func handleSignUp(logger *slog.Logger, ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignUpRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		_, err := ids.SignUp(r.Context(), identity.SignUpInput{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if errors.Is(err, identity.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		if err != nil {
			logger.Error("sign up failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		// A new account starts signed in.
		user, token, err := ids.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			logger.Error("sign in after sign up failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
	}
}

func handleSignIn(logger *slog.Logger, ids *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		user, token, err := ids.SignIn(r.Context(), req.Email, req.Password)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			logger.Error("sign in failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
	}
}

func handleSignOut(logger *slog.Logger, ids *identity.Service, tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ids.SignOut(r.Context(), sessionToken(r))
		if err != nil && !errors.Is(err, identity.ErrNoSession) {
			logger.Error("sign out failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if userID != "" {
			tracker.Forget(userID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := currentUser(r)
		writeJSON(w, http.StatusOK, user)
	}
}
