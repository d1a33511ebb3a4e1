// Package postgres is the pgx-backed store. Attachment lists are stored as
// text[] and the accept path takes row locks on the question and its answers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stackit-dev/stackit/internal/content"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, q: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'USER',
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title VARCHAR(255) NOT NULL,
	body TEXT NOT NULL,
	image_urls TEXT[] NOT NULL DEFAULT '{}',
	view_count BIGINT NOT NULL DEFAULT 0,
	closed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);

CREATE TABLE IF NOT EXISTS tags (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(50) NOT NULL UNIQUE,
	description TEXT,
	color TEXT NOT NULL DEFAULT '#007bff'
);

CREATE TABLE IF NOT EXISTS question_tags (
	question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (question_id, tag_id)
);

CREATE TABLE IF NOT EXISTS answers (
	id BIGSERIAL PRIMARY KEY,
	question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body TEXT NOT NULL,
	image_urls TEXT[] NOT NULL DEFAULT '{}',
	accepted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_one_accepted ON answers(question_id) WHERE accepted;

CREATE TABLE IF NOT EXISTS comments (
	id BIGSERIAL PRIMARY KEY,
	answer_id BIGINT NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body TEXT NOT NULL,
	image_urls TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_answer_id ON comments(answer_id);

CREATE TABLE IF NOT EXISTS votes (
	target_type TEXT NOT NULL,
	target_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	value SMALLINT NOT NULL CHECK (value BETWEEN -1 AND 1),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (target_type, target_id, user_id)
);
`,
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := pool.Exec(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	role := user.Role
	if role == "" {
		role = model.RoleUser
	}
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO users (username, email, role, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, user.Username, user.Email, string(role), user.PasswordHash, user.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, store.ErrDuplicateName
	}
	return id, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	return scanUser(s.q.QueryRow(ctx, `
SELECT id, username, email, role, password_hash, created_at FROM users WHERE id = $1
`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(s.q.QueryRow(ctx, `
SELECT id, username, email, role, password_hash, created_at FROM users WHERE username = $1
`, username))
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return model.User{}, notFound(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

// CreateTag uses ON CONFLICT so a lost race does not abort the surrounding
// transaction.
func (s *Store) CreateTag(ctx context.Context, tag *model.Tag) (int64, error) {
	color := tag.Color
	if color == "" {
		color = model.DefaultTagColor
	}
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO tags (name, description, color)
VALUES ($1, NULLIF($2, ''), $3)
ON CONFLICT (name) DO NOTHING
RETURNING id
`, tag.Name, tag.Description, color).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrDuplicateTag
	}
	return id, err
}

func (s *Store) GetTagByName(ctx context.Context, name string) (model.Tag, error) {
	return scanTag(s.q.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), color FROM tags WHERE name = $1`, name))
}

func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.collectTags(ctx, `SELECT id, name, COALESCE(description, ''), color FROM tags ORDER BY name`)
}

func (s *Store) questionTags(ctx context.Context, questionID int64) ([]model.Tag, error) {
	return s.collectTags(ctx, `
SELECT t.id, t.name, COALESCE(t.description, ''), t.color
FROM tags t
JOIN question_tags qt ON qt.tag_id = t.id
WHERE qt.question_id = $1
ORDER BY t.name
`, questionID)
}

func (s *Store) collectTags(ctx context.Context, sql string, args ...any) ([]model.Tag, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []model.Tag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) SetQuestionTags(ctx context.Context, questionID int64, tagIDs []int64) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM question_tags WHERE question_id = $1`, questionID); err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx, `
INSERT INTO question_tags (question_id, tag_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING
`, questionID, tagIDs)
	return err
}

func (s *Store) UpsertVote(ctx context.Context, vote *model.Vote) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO votes (target_type, target_id, user_id, value, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (target_type, target_id, user_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, string(vote.TargetType), vote.TargetID, vote.UserID, vote.Value, vote.CreatedAt)
	return err
}

func (s *Store) VoteTally(ctx context.Context, target model.VoteTarget, targetID int64) (int, error) {
	var tally int
	err := s.q.QueryRow(ctx, `
SELECT COALESCE(SUM(value), 0)::int FROM votes WHERE target_type = $1 AND target_id = $2
`, string(target), targetID).Scan(&tally)
	return tally, err
}

func scanTag(row pgx.Row) (model.Tag, error) {
	var t model.Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Color); err != nil {
		return model.Tag{}, notFound(err)
	}
	return t, nil
}

// attachments never hands pgx a nil slice, which would encode as NULL.
func attachments(urls []string) []string {
	return content.Normalize(urls)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func tagOrNotFound(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func now() time.Time {
	return time.Now().UTC()
}
