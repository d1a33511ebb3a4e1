package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

const questionColumns = `
q.id, q.user_id, q.title, q.body, q.image_urls, q.view_count, q.closed, q.created_at, q.updated_at,
COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.target_type = 'question' AND v.target_id = q.id), 0)::int`

const answerColumns = `
a.id, a.question_id, a.user_id, a.body, a.image_urls, a.accepted, a.created_at, a.updated_at,
COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.target_type = 'answer' AND v.target_id = a.id), 0)::int`

func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO questions (user_id, title, body, image_urls, closed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, q.UserID, q.Title, q.Body, attachments(q.ImageURLs), q.Closed, q.CreatedAt, q.UpdatedAt).Scan(&id)
	return id, err
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	return s.loadQuestion(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id)
}

func (s *Store) LockQuestion(ctx context.Context, id int64) (model.Question, error) {
	return s.loadQuestion(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1 FOR UPDATE OF q`, id)
}

func (s *Store) loadQuestion(ctx context.Context, sql string, id int64) (model.Question, error) {
	q, err := scanQuestion(s.q.QueryRow(ctx, sql, id))
	if err != nil {
		return model.Question{}, err
	}
	if q.Tags, err = s.questionTags(ctx, q.ID); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

func (s *Store) ListQuestions(ctx context.Context, opts store.QuestionListOpts) ([]model.Question, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + questionColumns + ` FROM questions q`
	var (
		where []string
		args  []any
	)
	if opts.Tag != "" {
		query += ` JOIN question_tags qt ON qt.question_id = q.id JOIN tags t ON t.id = qt.tag_id`
		args = append(args, opts.Tag)
		where = append(where, fmt.Sprintf("t.name = $%d", len(args)))
	}
	if opts.UserID != 0 {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("q.user_id = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY q.created_at DESC, q.id DESC LIMIT $%d", len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].Tags, err = s.questionTags(ctx, questions[i].ID); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return tagOrNotFound(s.q.Exec(ctx, `
UPDATE questions SET title = $1, body = $2, image_urls = $3, closed = $4, updated_at = $5
WHERE id = $6
`, q.Title, q.Body, attachments(q.ImageURLs), q.Closed, q.UpdatedAt, q.ID))
}

func (s *Store) IncrementViewCount(ctx context.Context, questionID int64) error {
	return tagOrNotFound(s.q.Exec(ctx, `UPDATE questions SET view_count = view_count + 1 WHERE id = $1`, questionID))
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx store.Store) error {
		pg := tx.(*Store)
		if _, err := pg.q.Exec(ctx, `
DELETE FROM votes
WHERE (target_type = 'question' AND target_id = $1)
   OR (target_type = 'answer' AND target_id IN (SELECT id FROM answers WHERE question_id = $1))
`, id); err != nil {
			return err
		}
		return tagOrNotFound(pg.q.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id))
	})
}

func (s *Store) CreateAnswer(ctx context.Context, a *model.Answer) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO answers (question_id, user_id, body, image_urls, accepted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, a.QuestionID, a.UserID, a.Body, attachments(a.ImageURLs), a.Accepted, a.CreatedAt, a.UpdatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, store.ErrAcceptConflict
	}
	return id, err
}

func (s *Store) GetAnswer(ctx context.Context, id int64) (model.Answer, error) {
	return scanAnswer(s.q.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers a WHERE a.id = $1`, id))
}

func (s *Store) ListAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	return s.collectAnswers(ctx, `
SELECT `+answerColumns+`
FROM answers a
WHERE a.question_id = $1
ORDER BY a.accepted DESC, a.created_at ASC, a.id ASC
`, questionID)
}

func (s *Store) LockAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	return s.collectAnswers(ctx, `
SELECT `+answerColumns+`
FROM answers a
WHERE a.question_id = $1
ORDER BY a.id
FOR UPDATE OF a
`, questionID)
}

func (s *Store) collectAnswers(ctx context.Context, sql string, args ...any) ([]model.Answer, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	answers := []model.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) UpdateAnswer(ctx context.Context, a *model.Answer) error {
	return tagOrNotFound(s.q.Exec(ctx, `
UPDATE answers SET body = $1, image_urls = $2, updated_at = $3 WHERE id = $4
`, a.Body, attachments(a.ImageURLs), a.UpdatedAt, a.ID))
}

func (s *Store) SetAnswerAccepted(ctx context.Context, answerID int64, accepted bool) error {
	err := tagOrNotFound(s.q.Exec(ctx, `
UPDATE answers SET accepted = $1, updated_at = $2 WHERE id = $3
`, accepted, now(), answerID))
	if isUniqueViolation(err) {
		return store.ErrAcceptConflict
	}
	return err
}

func (s *Store) DeleteAnswer(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx store.Store) error {
		pg := tx.(*Store)
		if _, err := pg.q.Exec(ctx, `DELETE FROM votes WHERE target_type = 'answer' AND target_id = $1`, id); err != nil {
			return err
		}
		return tagOrNotFound(pg.q.Exec(ctx, `DELETE FROM answers WHERE id = $1`, id))
	})
}

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO comments (answer_id, user_id, body, image_urls, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, c.AnswerID, c.UserID, c.Body, attachments(c.ImageURLs), c.CreatedAt, c.UpdatedAt).Scan(&id)
	return id, err
}

func (s *Store) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	return scanComment(s.q.QueryRow(ctx, `
SELECT id, answer_id, user_id, body, image_urls, created_at, updated_at FROM comments WHERE id = $1
`, id))
}

func (s *Store) ListCommentsByAnswer(ctx context.Context, answerID int64) ([]model.Comment, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, answer_id, user_id, body, image_urls, created_at, updated_at
FROM comments
WHERE answer_id = $1
ORDER BY created_at ASC, id ASC
`, answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) UpdateComment(ctx context.Context, c *model.Comment) error {
	return tagOrNotFound(s.q.Exec(ctx, `
UPDATE comments SET body = $1, image_urls = $2, updated_at = $3 WHERE id = $4
`, c.Body, attachments(c.ImageURLs), c.UpdatedAt, c.ID))
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	return tagOrNotFound(s.q.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id))
}

func scanQuestion(row pgx.Row) (model.Question, error) {
	var q model.Question
	if err := row.Scan(&q.ID, &q.UserID, &q.Title, &q.Body, &q.ImageURLs, &q.ViewCount, &q.Closed, &q.CreatedAt, &q.UpdatedAt, &q.Score); err != nil {
		return model.Question{}, notFound(err)
	}
	if q.ImageURLs == nil {
		q.ImageURLs = []string{}
	}
	q.Tags = []model.Tag{}
	return q, nil
}

func scanAnswer(row pgx.Row) (model.Answer, error) {
	var a model.Answer
	if err := row.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Body, &a.ImageURLs, &a.Accepted, &a.CreatedAt, &a.UpdatedAt, &a.Score); err != nil {
		return model.Answer{}, notFound(err)
	}
	if a.ImageURLs == nil {
		a.ImageURLs = []string{}
	}
	return a, nil
}

func scanComment(row pgx.Row) (model.Comment, error) {
	var c model.Comment
	if err := row.Scan(&c.ID, &c.AnswerID, &c.UserID, &c.Body, &c.ImageURLs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Comment{}, notFound(err)
	}
	if c.ImageURLs == nil {
		c.ImageURLs = []string{}
	}
	return c, nil
}
