package httpapp

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/storage"
)

// multipartOverhead is allowed on top of the file limit for form framing.
const multipartOverhead = 64 << 10

// handleUpload godoc
//
//	@Summary		Upload an image
//	@Description	Accepts JPEG, PNG, GIF or WebP up to the configured size and returns its public URL.
//	@Tags			Files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			kind	path		string	true	"Upload kind"	Enums(avatar, question, answer, comment)
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	storage.Upload
//	@Failure		400		{object}	map[string]string	"Invalid file"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/files/upload/{kind} [post]
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "upload", s.cfg.RateLimits.UploadPerMinute) {
		return
	}
	kind, ok := storage.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		s.fail(w, r, apperr.Validation("kind must be one of avatar, question, answer, comment"))
		return
	}
	limit := s.Storage.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, apperr.Validation("file is too large"))
			return
		}
		s.fail(w, r, apperr.Validation("multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.fail(w, r, apperr.Validation("could not read file"))
		return
	}
	up, err := s.Storage.Upload(r.Context(), kind, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

// handleDeleteFile godoc
//
//	@Summary		Delete an uploaded file
//	@Description	Best effort. Always reports success once the request is well formed.
//	@Tags			Files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			url	query		string	true	"Public URL returned by upload"
//	@Success		200	{object}	map[string]string
//	@Router			/api/files [delete]
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.fail(w, r, apperr.Validation("url is required"))
		return
	}
	s.Storage.Delete(r.Context(), url)
	writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}
