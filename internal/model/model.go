package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type Question struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ImageURLs []string  `json:"image_urls"`
	Tags      []Tag     `json:"tags"`
	ViewCount int64     `json:"view_count"`
	Closed    bool      `json:"closed"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Answer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     int64     `json:"user_id"`
	Body       string    `json:"body"`
	ImageURLs  []string  `json:"image_urls"`
	Accepted   bool      `json:"accepted"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	AnswerID  int64     `json:"answer_id"`
	UserID    int64     `json:"user_id"`
	Body      string    `json:"body"`
	ImageURLs []string  `json:"image_urls"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const DefaultTagColor = "#007bff"

type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
}

type VoteTarget string

const (
	VoteTargetQuestion VoteTarget = "question"
	VoteTargetAnswer   VoteTarget = "answer"
)

type Vote struct {
	TargetType VoteTarget
	TargetID   int64
	UserID     int64
	Value      int
	CreatedAt  time.Time
}

func (q Question) OwnerID() int64 { return q.UserID }
func (a Answer) OwnerID() int64   { return a.UserID }
func (c Comment) OwnerID() int64  { return c.UserID }
