package httpapp

import (
	"net/http"
	"strings"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/moderation"
)

type moderateTextRequest struct {
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"content_type" validate:"omitempty,oneof=question answer comment text"`
}

type moderateImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

type moderateBatchRequest struct {
	TextContent string   `json:"text_content"`
	ImageURLs   []string `json:"image_urls" validate:"omitempty,max=20,dive,required,url"`
}

type imageVerdict struct {
	URL string `json:"url"`
	moderation.Verdict
}

type moderateBatchResponse struct {
	Text            *moderation.Verdict `json:"text,omitempty"`
	Images          []imageVerdict      `json:"images"`
	OverallDecision moderation.Action   `json:"overall_decision"`
}

// handleModerationHealth godoc
//
//	@Summary	Moderation service status
//	@Tags		Moderation
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/api/moderation/health [get]
func (s *Server) handleModerationHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.Moderation.Enabled() && s.Moderation.Healthy(r.Context())
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"service":           "content-moderation",
		"enabled":           s.Moderation.Enabled(),
		"backend_connected": connected,
	})
}

// handleModerateText godoc
//
//	@Summary		Screen text
//	@Description	Runs text through moderation without storing anything. An unreachable moderation service yields an allow verdict.
//	@Tags			Moderation
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		moderateTextRequest	true	"Text to screen"
//	@Success		200		{object}	moderation.Verdict
//	@Router			/api/moderation/text [post]
func (s *Server) handleModerateText(w http.ResponseWriter, r *http.Request) {
	var req moderateTextRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	kind := moderation.Kind(req.ContentType)
	if kind == "" {
		kind = moderation.KindText
	}
	writeJSON(w, http.StatusOK, s.Moderation.ScreenText(r.Context(), req.Content, kind))
}

// handleModerateImage godoc
//
//	@Summary	Screen an image
//	@Tags		Moderation
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		moderateImageRequest	true	"Image to screen"
//	@Success	200		{object}	moderation.Verdict
//	@Router		/api/moderation/image [post]
func (s *Server) handleModerateImage(w http.ResponseWriter, r *http.Request) {
	var req moderateImageRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Moderation.ScreenImage(r.Context(), req.ImageURL))
}

// handleModerateBatch godoc
//
//	@Summary		Screen text and images together
//	@Description	Screens the text and every image URL. Image verdicts follow the input order; overall_decision is the strictest action seen.
//	@Tags			Moderation
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		moderateBatchRequest	true	"Content to screen"
//	@Success		200		{object}	moderateBatchResponse
//	@Router			/api/moderation/batch [post]
func (s *Server) handleModerateBatch(w http.ResponseWriter, r *http.Request) {
	var req moderateBatchRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.TextContent) == "" && len(req.ImageURLs) == 0 {
		s.fail(w, r, apperr.Validation("text_content or image_urls is required"))
		return
	}

	resp := moderateBatchResponse{Images: []imageVerdict{}, OverallDecision: moderation.ActionAllow}
	if strings.TrimSpace(req.TextContent) != "" {
		v := s.Moderation.ScreenText(r.Context(), req.TextContent, moderation.KindText)
		resp.Text = &v
		resp.OverallDecision = stricter(resp.OverallDecision, v)
	}
	if len(req.ImageURLs) > 0 {
		for i, v := range s.Moderation.ScreenMany(r.Context(), req.ImageURLs) {
			resp.Images = append(resp.Images, imageVerdict{URL: req.ImageURLs[i], Verdict: v})
			resp.OverallDecision = stricter(resp.OverallDecision, v)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// stricter folds v into the running decision: block beats flag beats allow.
func stricter(current moderation.Action, v moderation.Verdict) moderation.Action {
	switch {
	case moderation.IsBlocked(v):
		return moderation.ActionBlock
	case v.Action == moderation.ActionFlag && current == moderation.ActionAllow:
		return moderation.ActionFlag
	default:
		return current
	}
}
