package httpapp

import (
	"net/http"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/qa"
)

const (
	defaultListLimit = 30
	maxListLimit     = 100
)

type questionRequest struct {
	Title     string   `json:"title" validate:"required,max=255"`
	Body      string   `json:"body" validate:"required"`
	ImageURLs []string `json:"image_urls" validate:"omitempty,max=10,dive,max=2048"`
	Tags      []string `json:"tags" validate:"omitempty,max=10,dive,max=50"`
}

func (q questionRequest) input() qa.QuestionInput {
	return qa.QuestionInput{Title: q.Title, Body: q.Body, ImageURLs: q.ImageURLs, Tags: q.Tags}
}

// handleListQuestions godoc
//
//	@Summary		List questions
//	@Description	Newest questions first, optionally filtered by tag.
//	@Tags			Questions
//	@Produce		json
//	@Param			tag		query		string	false	"Tag name"
//	@Param			limit	query		int		false	"Results per page"	default(30)	maximum(100)
//	@Success		200		{object}	map[string]interface{}	"Questions list"
//	@Router			/api/questions [get]
func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	questions, err := s.Catalog.ListQuestions(r.Context(), tag, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	resp := map[string]any{"questions": questions, "limit": limit}
	if tag != "" {
		resp["tag"] = tag
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetQuestion godoc
//
//	@Summary		Get a question
//	@Description	Returns the question with its tags and counts the view.
//	@Tags			Questions
//	@Produce		json
//	@Param			id	path		int	true	"Question ID"
//	@Success		200	{object}	model.Question
//	@Failure		404	{object}	map[string]string	"Question not found"
//	@Router			/api/questions/{id} [get]
func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "question")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.Catalog.ViewQuestion(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleCreateQuestion godoc
//
//	@Summary		Ask a question
//	@Description	Title, body and every image are screened by moderation before anything is saved.
//	@Tags			Questions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			question	body		questionRequest	true	"Question"
//	@Success		201			{object}	model.Question
//	@Failure		400			{object}	map[string]string	"Invalid input"
//	@Failure		401			{object}	map[string]string	"Unauthorized"
//	@Failure		403			{object}	map[string]interface{}	"Blocked by moderation"
//	@Failure		429			{object}	map[string]string	"Rate limited"
//	@Router			/api/questions [post]
func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	var req questionRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.Pipeline.CreateQuestion(r.Context(), identity(r).UserID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// handleUpdateQuestion godoc
//
//	@Summary		Edit a question
//	@Description	Owner only. Omitting image_urls or tags keeps the stored values.
//	@Tags			Questions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		int				true	"Question ID"
//	@Param			question	body		questionRequest	true	"Question"
//	@Success		200			{object}	model.Question
//	@Failure		403			{object}	map[string]interface{}	"Not the owner, or blocked by moderation"
//	@Failure		404			{object}	map[string]string	"Question not found"
//	@Router			/api/questions/{id} [put]
func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	id, err := pathID(r, "question")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req questionRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.Pipeline.UpdateQuestion(r.Context(), identity(r).UserID, id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleDeleteQuestion godoc
//
//	@Summary		Delete a question
//	@Description	Owner or admin. Removes its answers and comments too.
//	@Tags			Questions
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Question ID"
//	@Success		200	{object}	map[string]string	"Success message"
//	@Failure		403	{object}	map[string]string	"Forbidden"
//	@Failure		404	{object}	map[string]string	"Question not found"
//	@Router			/api/questions/{id} [delete]
func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "question")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Pipeline.DeleteQuestion(r.Context(), identity(r).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "question deleted"})
}

// handleListAnswers godoc
//
//	@Summary	List answers
//	@Description	Accepted answer first, then oldest first.
//	@Tags		Answers
//	@Produce	json
//	@Param		id	path		int	true	"Question ID"
//	@Success	200	{array}		model.Answer
//	@Failure	404	{object}	map[string]string	"Question not found"
//	@Router		/api/questions/{id}/answers [get]
func (s *Server) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "question")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	answers, err := s.Catalog.Answers(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	writeJSON(w, http.StatusOK, answers)
}

// handleListTags godoc
//
//	@Summary	List tags
//	@Tags		Tags
//	@Produce	json
//	@Success	200	{array}	model.Tag
//	@Router		/api/tags [get]
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.Catalog.Tags(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// handleVoteQuestion godoc
//
//	@Summary		Vote on a question
//	@Description	One vote per user; a repeat vote replaces the earlier one and 0 withdraws it.
//	@Tags			Votes
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int			true	"Question ID"
//	@Param			vote	body		voteRequest	true	"Vote (value: -1, 0 or 1)"
//	@Success		200		{object}	voteResponse
//	@Failure		400		{object}	map[string]string	"Invalid input"
//	@Failure		404		{object}	map[string]string	"Question not found"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/questions/{id}/vote [post]
func (s *Server) handleVoteQuestion(w http.ResponseWriter, r *http.Request) {
	s.vote(w, r, model.VoteTargetQuestion)
}

// handleListUserQuestions godoc
//
//	@Summary	List a user's questions
//	@Tags		Questions
//	@Produce	json
//	@Param		id		path		int	true	"User ID"
//	@Param		limit	query		int	false	"Results per page"	default(30)	maximum(100)
//	@Success	200		{array}		model.Question
//	@Failure	404		{object}	map[string]string	"User not found"
//	@Router		/api/questions/user/{id} [get]
func (s *Server) handleListUserQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	questions, err := s.Catalog.QuestionsByUser(r.Context(), id, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

// handleQuestionScore godoc
//
//	@Summary	Current vote total of a question
//	@Tags		Votes
//	@Produce	json
//	@Param		id	path		int	true	"Question ID"
//	@Success	200	{object}	scoreResponse
//	@Failure	404	{object}	map[string]string	"Question not found"
//	@Router		/api/questions/{id}/score [get]
func (s *Server) handleQuestionScore(w http.ResponseWriter, r *http.Request) {
	s.score(w, r, model.VoteTargetQuestion)
}
