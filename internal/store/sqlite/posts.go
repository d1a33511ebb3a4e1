package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/stackit-dev/stackit/internal/content"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

// Attachment lists are kept in a single TEXT column encoded by
// content.Serialize.

const questionColumns = `
q.id, q.user_id, q.title, q.body, q.image_urls, q.view_count, q.closed, q.created_at, q.updated_at,
COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.target_type = 'question' AND v.target_id = q.id), 0)`

const answerColumns = `
a.id, a.question_id, a.user_id, a.body, a.image_urls, a.accepted, a.created_at, a.updated_at,
COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.target_type = 'answer' AND v.target_id = a.id), 0)`

func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO questions (user_id, title, body, image_urls, view_count, closed, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, ?, ?, ?)
`, q.UserID, q.Title, q.Body, content.Serialize(q.ImageURLs), boolToInt(q.Closed), q.CreatedAt.Unix(), q.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		return model.Question{}, err
	}
	if q.Tags, err = s.questionTags(ctx, q.ID); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

// LockQuestion is GetQuestion: the single pooled connection already
// serializes transactions.
func (s *Store) LockQuestion(ctx context.Context, id int64) (model.Question, error) {
	return s.GetQuestion(ctx, id)
}

func (s *Store) ListQuestions(ctx context.Context, opts store.QuestionListOpts) ([]model.Question, error) {
	limit := clamp(opts.Limit, 1, 100)
	if opts.Limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + questionColumns + ` FROM questions q`
	var (
		where []string
		args  []any
	)
	if opts.Tag != "" {
		query += ` JOIN question_tags qt ON qt.question_id = q.id JOIN tags t ON t.id = qt.tag_id`
		where = append(where, "t.name = ?")
		args = append(args, opts.Tag)
	}
	if opts.UserID != 0 {
		where = append(where, "q.user_id = ?")
		args = append(args, opts.UserID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY q.created_at DESC, q.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Tags are loaded after the cursor is closed; the pool has one connection.
	for i := range questions {
		if questions[i].Tags, err = s.questionTags(ctx, questions[i].ID); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q *model.Question) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `
UPDATE questions SET title = ?, body = ?, image_urls = ?, closed = ?, updated_at = ?
WHERE id = ?
`, q.Title, q.Body, content.Serialize(q.ImageURLs), boolToInt(q.Closed), q.UpdatedAt.Unix(), q.ID))
}

func (s *Store) IncrementViewCount(ctx context.Context, questionID int64) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `UPDATE questions SET view_count = view_count + 1 WHERE id = ?`, questionID))
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id))
}

func (s *Store) CreateAnswer(ctx context.Context, a *model.Answer) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO answers (question_id, user_id, body, image_urls, accepted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, a.QuestionID, a.UserID, a.Body, content.Serialize(a.ImageURLs), boolToInt(a.Accepted), a.CreatedAt.Unix(), a.UpdatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrAcceptConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetAnswer(ctx context.Context, id int64) (model.Answer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+answerColumns+` FROM answers a WHERE a.id = ?`, id)
	return scanAnswer(row)
}

func (s *Store) ListAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+answerColumns+`
FROM answers a
WHERE a.question_id = ?
ORDER BY a.accepted DESC, a.created_at ASC, a.id ASC
`, questionID)
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

func (s *Store) LockAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error) {
	return s.ListAnswersByQuestion(ctx, questionID)
}

func (s *Store) UpdateAnswer(ctx context.Context, a *model.Answer) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `
UPDATE answers SET body = ?, image_urls = ?, updated_at = ?
WHERE id = ?
`, a.Body, content.Serialize(a.ImageURLs), a.UpdatedAt.Unix(), a.ID))
}

func (s *Store) SetAnswerAccepted(ctx context.Context, answerID int64, accepted bool) error {
	err := affectedOrNotFound(s.q.ExecContext(ctx, `
UPDATE answers SET accepted = ?, updated_at = ? WHERE id = ?
`, boolToInt(accepted), time.Now().Unix(), answerID))
	if isUniqueViolation(err) {
		return store.ErrAcceptConflict
	}
	return err
}

func (s *Store) DeleteAnswer(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id))
}

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO comments (answer_id, user_id, body, image_urls, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, c.AnswerID, c.UserID, c.Body, content.Serialize(c.ImageURLs), c.CreatedAt.Unix(), c.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT id, answer_id, user_id, body, image_urls, created_at, updated_at
FROM comments
WHERE id = ?
`, id)
	return scanComment(row)
}

func (s *Store) ListCommentsByAnswer(ctx context.Context, answerID int64) ([]model.Comment, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, answer_id, user_id, body, image_urls, created_at, updated_at
FROM comments
WHERE answer_id = ?
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
	return affectedOrNotFound(s.q.ExecContext(ctx, `
UPDATE comments SET body = ?, image_urls = ?, updated_at = ?
WHERE id = ?
`, c.Body, content.Serialize(c.ImageURLs), c.UpdatedAt.Unix(), c.ID))
}

func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	return affectedOrNotFound(s.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id))
}

func scanQuestion(scanner interface{ Scan(dest ...any) error }) (model.Question, error) {
	var q model.Question
	var images string
	var closed int
	var created, updated int64
	if err := scanner.Scan(&q.ID, &q.UserID, &q.Title, &q.Body, &images, &q.ViewCount, &closed, &created, &updated, &q.Score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Question{}, store.ErrNotFound
		}
		return model.Question{}, err
	}
	q.ImageURLs = content.Expand(images)
	q.Closed = closed == 1
	q.CreatedAt = time.Unix(created, 0)
	q.UpdatedAt = time.Unix(updated, 0)
	q.Tags = []model.Tag{}
	return q, nil
}

func scanAnswer(scanner interface{ Scan(dest ...any) error }) (model.Answer, error) {
	var a model.Answer
	var images string
	var accepted int
	var created, updated int64
	if err := scanner.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Body, &images, &accepted, &created, &updated, &a.Score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Answer{}, store.ErrNotFound
		}
		return model.Answer{}, err
	}
	a.ImageURLs = content.Expand(images)
	a.Accepted = accepted == 1
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	return a, nil
}

func scanComment(scanner interface{ Scan(dest ...any) error }) (model.Comment, error) {
	var c model.Comment
	var images string
	var created, updated int64
	if err := scanner.Scan(&c.ID, &c.AnswerID, &c.UserID, &c.Body, &images, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, store.ErrNotFound
		}
		return model.Comment{}, err
	}
	c.ImageURLs = content.Expand(images)
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return c, nil
}
