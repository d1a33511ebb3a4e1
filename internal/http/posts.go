package httpapp

import (
	"net/http"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/qa"
)

type postRequest struct {
	Body      string   `json:"body" validate:"required"`
	ImageURLs []string `json:"image_urls" validate:"omitempty,max=10,dive,max=2048"`
}

func (p postRequest) input() qa.PostInput {
	return qa.PostInput{Body: p.Body, ImageURLs: p.ImageURLs}
}

type voteRequest struct {
	Value *int `json:"value" validate:"required,oneof=-1 0 1"`
}

type voteResponse struct {
	Target model.VoteTarget `json:"target"`
	ID     int64            `json:"id"`
	Value  int              `json:"value"`
	Score  int              `json:"score"`
}

// handleCreateAnswer godoc
//
//	@Summary		Answer a question
//	@Description	The body and every image are screened by moderation before anything is saved.
//	@Tags			Answers
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int			true	"Question ID"
//	@Param			answer	body		postRequest	true	"Answer"
//	@Success		201		{object}	model.Answer
//	@Failure		403		{object}	map[string]interface{}	"Blocked by moderation"
//	@Failure		404		{object}	map[string]string	"Question not found"
//	@Router			/api/questions/{id}/answers [post]
func (s *Server) handleCreateAnswer(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	questionID, err := pathID(r, "question")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.Pipeline.CreateAnswer(r.Context(), identity(r).UserID, questionID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleUpdateAnswer godoc
//
//	@Summary		Edit an answer
//	@Description	Author only. Omitting image_urls keeps the stored attachments.
//	@Tags			Answers
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int			true	"Answer ID"
//	@Param			answer	body		postRequest	true	"Answer"
//	@Success		200		{object}	model.Answer
//	@Failure		403		{object}	map[string]interface{}	"Not the author, or blocked by moderation"
//	@Failure		404		{object}	map[string]string	"Answer not found"
//	@Router			/api/answers/{id} [put]
func (s *Server) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	id, err := pathID(r, "answer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.Pipeline.UpdateAnswer(r.Context(), identity(r).UserID, id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleDeleteAnswer godoc
//
//	@Summary	Delete an answer
//	@Tags		Answers
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		int	true	"Answer ID"
//	@Success	200	{object}	map[string]string	"Success message"
//	@Failure	403	{object}	map[string]string	"Forbidden"
//	@Failure	404	{object}	map[string]string	"Answer not found"
//	@Router		/api/answers/{id} [delete]
func (s *Server) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "answer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Pipeline.DeleteAnswer(r.Context(), identity(r).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "answer deleted"})
}

// handleAcceptAnswer godoc
//
//	@Summary		Accept an answer
//	@Description	Only the question's owner may accept. Any previously accepted answer is cleared.
//	@Tags			Answers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Answer ID"
//	@Success		200	{object}	model.Answer
//	@Failure		403	{object}	map[string]string	"Not the question owner"
//	@Failure		404	{object}	map[string]string	"Answer not found"
//	@Router			/api/answers/{id}/accept [post]
func (s *Server) handleAcceptAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "answer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.Acceptance.Accept(r.Context(), id, identity(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleVoteAnswer godoc
//
//	@Summary		Vote on an answer
//	@Description	One vote per user; a repeat vote replaces the earlier one and 0 withdraws it.
//	@Tags			Votes
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int			true	"Answer ID"
//	@Param			vote	body		voteRequest	true	"Vote (value: -1, 0 or 1)"
//	@Success		200		{object}	voteResponse
//	@Failure		400		{object}	map[string]string	"Invalid input"
//	@Failure		404		{object}	map[string]string	"Answer not found"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/answers/{id}/vote [post]
func (s *Server) handleVoteAnswer(w http.ResponseWriter, r *http.Request) {
	s.vote(w, r, model.VoteTargetAnswer)
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request, target model.VoteTarget) {
	if !s.allowRateLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute) {
		return
	}
	id, err := pathID(r, string(target))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req voteRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	score, err := s.Ledger.Vote(r.Context(), target, id, identity(r).UserID, *req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Target: target, ID: id, Value: *req.Value, Score: score})
}

type scoreResponse struct {
	Target model.VoteTarget `json:"target"`
	ID     int64            `json:"id"`
	Score  int              `json:"score"`
}

// handleAnswerScore godoc
//
//	@Summary	Current vote total of an answer
//	@Tags		Votes
//	@Produce	json
//	@Param		id	path		int	true	"Answer ID"
//	@Success	200	{object}	scoreResponse
//	@Failure	404	{object}	map[string]string	"Answer not found"
//	@Router		/api/answers/{id}/score [get]
func (s *Server) handleAnswerScore(w http.ResponseWriter, r *http.Request) {
	s.score(w, r, model.VoteTargetAnswer)
}

func (s *Server) score(w http.ResponseWriter, r *http.Request, target model.VoteTarget) {
	id, err := pathID(r, string(target))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tally, err := s.Ledger.Tally(r.Context(), target, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Target: target, ID: id, Score: tally})
}

// handleListComments godoc
//
//	@Summary	List comments on an answer
//	@Tags		Comments
//	@Produce	json
//	@Param		id	path		int	true	"Answer ID"
//	@Success	200	{array}		model.Comment
//	@Failure	404	{object}	map[string]string	"Answer not found"
//	@Router		/api/answers/{id}/comments [get]
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "answer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comments, err := s.Catalog.Comments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// handleCreateComment godoc
//
//	@Summary	Comment on an answer
//	@Tags		Comments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		int			true	"Answer ID"
//	@Param		comment	body		postRequest	true	"Comment"
//	@Success	201		{object}	model.Comment
//	@Failure	403		{object}	map[string]interface{}	"Blocked by moderation"
//	@Failure	404		{object}	map[string]string	"Answer not found"
//	@Router		/api/answers/{id}/comments [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	answerID, err := pathID(r, "answer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Pipeline.CreateComment(r.Context(), identity(r).UserID, answerID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleUpdateComment godoc
//
//	@Summary	Edit a comment
//	@Tags		Comments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		int			true	"Comment ID"
//	@Param		comment	body		postRequest	true	"Comment"
//	@Success	200		{object}	model.Comment
//	@Failure	403		{object}	map[string]interface{}	"Not the author, or blocked by moderation"
//	@Failure	404		{object}	map[string]string	"Comment not found"
//	@Router		/api/comments/{id} [put]
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "submit", s.cfg.RateLimits.SubmitPerMinute) {
		return
	}
	id, err := pathID(r, "comment")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Pipeline.UpdateComment(r.Context(), identity(r).UserID, id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteComment godoc
//
//	@Summary	Delete a comment
//	@Tags		Comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		int	true	"Comment ID"
//	@Success	200	{object}	map[string]string	"Success message"
//	@Failure	403	{object}	map[string]string	"Forbidden"
//	@Failure	404	{object}	map[string]string	"Comment not found"
//	@Router		/api/comments/{id} [delete]
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "comment")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Pipeline.DeleteComment(r.Context(), identity(r).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "comment deleted"})
}
