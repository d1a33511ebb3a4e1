package httpapp

import (
	"net/http"

	"github.com/stackit-dev/stackit/internal/auth"
	"github.com/stackit-dev/stackit/internal/model"
)

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type tokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	auth.Token
	User model.User `json:"user"`
}

// handleCreateUser godoc
//
//	@Summary	Register a user
//	@Tags		Users
//	@Accept		json
//	@Produce	json
//	@Param		user	body		createUserRequest	true	"New user"
//	@Success	201		{object}	model.User
//	@Failure	400		{object}	map[string]string	"Invalid input or username taken"
//	@Router		/api/users [post]
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.Accounts.Register(r.Context(), req.Username, req.Email, req.Password, model.RoleUser)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser godoc
//
//	@Summary	Get a user's public profile
//	@Tags		Users
//	@Produce	json
//	@Param		id	path		int	true	"User ID"
//	@Success	200	{object}	model.User
//	@Failure	404	{object}	map[string]string	"User not found"
//	@Router		/api/users/{id} [get]
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.Accounts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user.Email = ""
	writeJSON(w, http.StatusOK, user)
}

// handleCreateToken godoc
//
//	@Summary		Get a bearer token
//	@Description	Exchange a username and password for a signed access token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		tokenRequest	true	"Credentials"
//	@Success		200			{object}	tokenResponse
//	@Failure		401			{object}	map[string]string	"Invalid credentials"
//	@Router			/api/auth/token [post]
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.Accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.Auth.Issue(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// handleMe godoc
//
//	@Summary	Get the calling user
//	@Tags		Auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	model.User
//	@Failure	401	{object}	map[string]string	"Missing or invalid token"
//	@Router		/api/auth/me [get]
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.Accounts.Get(r.Context(), identity(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
