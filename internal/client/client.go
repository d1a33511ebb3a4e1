// Package client provides a Go client for the Stackit API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stackit-dev/stackit/internal/model"
)

// Client is a Stackit API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// New creates a new Stackit client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Type    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Type)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Blocked reports whether moderation rejected the submission.
func (e *APIError) Blocked() bool {
	return e.Type == "CONTENT_MODERATION"
}

// Reasons lists the moderation reasons of a blocked submission.
func (e *APIError) Reasons() []string {
	raw, _ := e.Details["reasons"].([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Register creates a new user account.
func (c *Client) Register(ctx context.Context, username, email, password string) (model.User, error) {
	var user model.User
	err := c.call(ctx, http.MethodPost, "/api/users", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &user)
	return user, err
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/auth/token", map[string]string{
		"username": username,
		"password": password,
	}, &result); err != nil {
		return err
	}
	c.Token = result.Token
	c.TokenExp = result.ExpiresAt
	return nil
}

// IsAuthenticated returns true if the client has a valid token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

func (c *Client) AskQuestion(ctx context.Context, title, body string, imageURLs, tags []string) (model.Question, error) {
	var q model.Question
	err := c.call(ctx, http.MethodPost, "/api/questions", map[string]any{
		"title":      title,
		"body":       body,
		"image_urls": imageURLs,
		"tags":       tags,
	}, &q)
	return q, err
}

func (c *Client) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var q model.Question
	err := c.call(ctx, http.MethodGet, "/api/questions/"+strconv.FormatInt(id, 10), nil, &q)
	return q, err
}

func (c *Client) ListQuestions(ctx context.Context, tag string, limit int) ([]model.Question, error) {
	query := url.Values{}
	if tag != "" {
		query.Set("tag", tag)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var result struct {
		Questions []model.Question `json:"questions"`
	}
	err := c.call(ctx, http.MethodGet, "/api/questions?"+query.Encode(), nil, &result)
	return result.Questions, err
}

func (c *Client) DeleteQuestion(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, "/api/questions/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) PostAnswer(ctx context.Context, questionID int64, body string, imageURLs []string) (model.Answer, error) {
	var a model.Answer
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", questionID), map[string]any{
		"body":       body,
		"image_urls": imageURLs,
	}, &a)
	return a, err
}

func (c *Client) Answers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	var answers []model.Answer
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/questions/%d/answers", questionID), nil, &answers)
	return answers, err
}

func (c *Client) PostComment(ctx context.Context, answerID int64, body string, imageURLs []string) (model.Comment, error) {
	var cm model.Comment
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/answers/%d/comments", answerID), map[string]any{
		"body":       body,
		"image_urls": imageURLs,
	}, &cm)
	return cm, err
}

func (c *Client) Accept(ctx context.Context, answerID int64) (model.Answer, error) {
	var a model.Answer
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", answerID), nil, &a)
	return a, err
}

// Vote records value (-1, 0 or 1) on a question or answer and returns the
// new score.
func (c *Client) Vote(ctx context.Context, target model.VoteTarget, id int64, value int) (int, error) {
	var result struct {
		Score int `json:"score"`
	}
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/%ss/%d/vote", target, id), map[string]int{"value": value}, &result)
	return result.Score, err
}

// Upload sends an image and returns its public URL.
func (c *Client) Upload(ctx context.Context, kind, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/files/upload/"+kind, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var result struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func decodeError(status int, raw []byte) error {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	}
	apiErr := &APIError{Status: status, Details: body}
	apiErr.Message, _ = body["error"].(string)
	apiErr.Type, _ = body["type"].(string)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
