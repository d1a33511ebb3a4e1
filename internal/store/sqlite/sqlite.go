package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var _ store.Store = (*Store)(nil)

// Open opens (and migrates) the database at path. The pool is limited to one
// connection so transactions serialize and per-connection pragmas hold.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, q: db}, nil
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. Nested calls reuse the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'USER',
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	image_urls TEXT NOT NULL DEFAULT '',
	view_count INTEGER NOT NULL DEFAULT 0,
	closed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	color TEXT NOT NULL DEFAULT '#007bff'
);

CREATE TABLE IF NOT EXISTS question_tags (
	question_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	PRIMARY KEY (question_id, tag_id),
	FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE,
	FOREIGN KEY(tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	body TEXT NOT NULL,
	image_urls TEXT NOT NULL DEFAULT '',
	accepted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_one_accepted ON answers(question_id) WHERE accepted = 1;

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	answer_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	body TEXT NOT NULL,
	image_urls TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(answer_id) REFERENCES answers(id) ON DELETE CASCADE,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_comments_answer_id ON comments(answer_id);

CREATE TABLE IF NOT EXISTS votes (
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	value INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (target_type, target_id, user_id)
);

CREATE TRIGGER IF NOT EXISTS trg_questions_votes AFTER DELETE ON questions BEGIN
	DELETE FROM votes WHERE target_type = 'question' AND target_id = OLD.id;
END;
CREATE TRIGGER IF NOT EXISTS trg_answers_votes AFTER DELETE ON answers BEGIN
	DELETE FROM votes WHERE target_type = 'answer' AND target_id = OLD.id;
END;
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
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
	res, err := s.q.ExecContext(ctx, `
INSERT INTO users (username, email, role, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)
`, user.Username, user.Email, string(role), user.PasswordHash, user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateName
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `
SELECT id, username, email, role, password_hash, created_at
FROM users
WHERE id = ?
`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `
SELECT id, username, email, role, password_hash, created_at
FROM users
WHERE username = ?
`, username))
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var role string
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}

func (s *Store) CreateTag(ctx context.Context, tag *model.Tag) (int64, error) {
	color := tag.Color
	if color == "" {
		color = model.DefaultTagColor
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO tags (name, description, color)
VALUES (?, ?, ?)
`, tag.Name, nullIfEmpty(tag.Description), color)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateTag
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetTagByName(ctx context.Context, name string) (model.Tag, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, name, description, color FROM tags WHERE name = ?`, name)
	return scanTag(row)
}

func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, description, color FROM tags ORDER BY name`)
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

func (s *Store) questionTags(ctx context.Context, questionID int64) ([]model.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT t.id, t.name, t.description, t.color
FROM tags t
JOIN question_tags qt ON qt.tag_id = t.id
WHERE qt.question_id = ?
ORDER BY t.name
`, questionID)
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
	if _, err := s.q.ExecContext(ctx, `DELETE FROM question_tags WHERE question_id = ?`, questionID); err != nil {
		return err
	}
	for _, id := range tagIDs {
		if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO question_tags (question_id, tag_id) VALUES (?, ?)`, questionID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertVote(ctx context.Context, vote *model.Vote) error {
	now := vote.CreatedAt.Unix()
	_, err := s.q.ExecContext(ctx, `
INSERT INTO votes (target_type, target_id, user_id, value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (target_type, target_id, user_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, string(vote.TargetType), vote.TargetID, vote.UserID, vote.Value, now, now)
	return err
}

func (s *Store) VoteTally(ctx context.Context, target model.VoteTarget, targetID int64) (int, error) {
	var tally int
	err := s.q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(value), 0) FROM votes WHERE target_type = ? AND target_id = ?
`, string(target), targetID).Scan(&tally)
	return tally, err
}

func scanTag(scanner interface{ Scan(dest ...any) error }) (model.Tag, error) {
	var t model.Tag
	var desc sql.NullString
	if err := scanner.Scan(&t.ID, &t.Name, &desc, &t.Color); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Tag{}, store.ErrNotFound
		}
		return model.Tag{}, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// affectedOrNotFound turns a zero-row write into store.ErrNotFound.
func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
